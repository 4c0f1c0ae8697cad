package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type fileEntry struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	Size     int64  `json:"size,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// NewListFilesTool returns the built-in directory listing tool. limit caps
// the number of entries in the result; the output records when it was hit.
func NewListFilesTool(limit int) Tool {
	return Tool{
		Name: "list_files",
		Description: "Lists files and directories in the specified directory (like 'ls'). " +
			"Supports recursive listing, hidden files, extension filters and sorting.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory path to list. Defaults to the current directory.",
				},
				"recursive": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, list files recursively in subdirectories.",
				},
				"show_hidden": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include entries starting with '.'.",
				},
				"show_details": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include file size and modification time.",
				},
				"extensions": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Filter files by extension, e.g. [\".go\", \".md\"].",
				},
				"sort_by": map[string]interface{}{
					"type":        "string",
					"enum":        []interface{}{"name", "size", "modified", "type"},
					"description": "Sort entries by name, size, modification time or type.",
				},
			},
			"required": []interface{}{},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return listFiles(args, limit)
		},
	}
}

func listFiles(args map[string]interface{}, limit int) (string, error) {
	path := stringArg(args, "path", ".")
	recursive := boolArg(args, "recursive")
	showHidden := boolArg(args, "show_hidden")
	showDetails := boolArg(args, "show_details")
	sortBy := stringArg(args, "sort_by", "name")
	extensions := stringSliceArg(args, "extensions")

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot access %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q is not a directory", path)
	}

	var entries []fileEntry
	collect := func(entryPath string, d fs.DirEntry) error {
		name := d.Name()
		if !showHidden && strings.HasPrefix(name, ".") && entryPath != path {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entryPath == path {
			return nil
		}
		if len(extensions) > 0 && !d.IsDir() && !hasExtension(name, extensions) {
			return nil
		}

		entry := fileEntry{Name: name, Path: entryPath, IsDir: d.IsDir()}
		if showDetails {
			if fi, err := d.Info(); err == nil {
				entry.Size = fi.Size()
				entry.Modified = fi.ModTime().Format(time.RFC3339)
			}
		}
		entries = append(entries, entry)
		return nil
	}

	if recursive {
		err = filepath.WalkDir(path, func(entryPath string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return nil // unreadable subtree, skip quietly
			}
			return collect(entryPath, d)
		})
	} else {
		var dirEntries []fs.DirEntry
		dirEntries, err = os.ReadDir(path)
		if err == nil {
			for _, d := range dirEntries {
				if cerr := collect(filepath.Join(path, d.Name()), d); cerr != nil && cerr != filepath.SkipDir {
					err = cerr
					break
				}
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to list %q: %w", path, err)
	}

	sortEntries(entries, sortBy)

	truncated := false
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
		truncated = true
	}

	out, err := json.Marshal(map[string]interface{}{
		"status":    "success",
		"path":      path,
		"count":     len(entries),
		"truncated": truncated,
		"entries":   entries,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func sortEntries(entries []fileEntry, sortBy string) {
	switch sortBy {
	case "size":
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Size < entries[j].Size })
	case "modified":
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Modified < entries[j].Modified })
	case "type":
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].IsDir != entries[j].IsDir {
				return entries[i].IsDir
			}
			return filepath.Ext(entries[i].Name) < filepath.Ext(entries[j].Name)
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	}
}

func hasExtension(name string, extensions []string) bool {
	ext := filepath.Ext(name)
	for _, want := range extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

func stringArg(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
