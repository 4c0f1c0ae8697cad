package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plan-agent/pkg/logger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(logger.CreateTestLogger())
}

func writeFile(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
}

func TestRegisterRejectsInvalidTools(t *testing.T) {
	registry := newTestRegistry(t)

	err := registry.Register(Tool{Name: "", Handler: func(ctx context.Context, args map[string]interface{}) (string, error) { return "", nil }})
	assert.Error(t, err)

	err = registry.Register(Tool{Name: "handlerless"})
	assert.Error(t, err)
}

func TestCatalogPreservesRegistrationOrder(t *testing.T) {
	registry := newTestRegistry(t)
	noop := func(ctx context.Context, args map[string]interface{}) (string, error) { return "", nil }

	require.NoError(t, registry.Register(Tool{Name: "zebra", Handler: noop}))
	require.NoError(t, registry.Register(Tool{Name: "aardvark", Handler: noop}))

	assert.Equal(t, []string{"zebra", "aardvark"}, registry.Names())

	catalog := registry.Catalog()
	require.Len(t, catalog, 2)
	assert.Equal(t, "zebra", catalog[0].Name)
}

func TestDispatchUnknownTool(t *testing.T) {
	registry := newTestRegistry(t)

	_, err := registry.Dispatch(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Equal(t, KindUnknownTool, KindOf(err))
}

func TestDispatchValidatesArguments(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(Tool{
		Name: "greet",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name":  map[string]interface{}{"type": "string"},
				"times": map[string]interface{}{"type": "integer", "minimum": float64(1)},
			},
			"required":             []interface{}{"name"},
			"additionalProperties": false,
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "hi " + args["name"].(string), nil
		},
	}))

	out, err := registry.Dispatch(context.Background(), "greet", map[string]interface{}{"name": "ada", "times": 2})
	require.NoError(t, err)
	assert.Equal(t, "hi ada", out)

	// Missing required field.
	_, err = registry.Dispatch(context.Background(), "greet", map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, KindInvalidArguments, KindOf(err))

	// Wrong type.
	_, err = registry.Dispatch(context.Background(), "greet", map[string]interface{}{"name": 7})
	require.Error(t, err)
	assert.Equal(t, KindInvalidArguments, KindOf(err))

	// Unknown argument.
	_, err = registry.Dispatch(context.Background(), "greet", map[string]interface{}{"name": "ada", "shout": true})
	require.Error(t, err)
	assert.Equal(t, KindInvalidArguments, KindOf(err))
}

func TestDispatchWrapsHandlerErrors(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(Tool{
		Name: "fail",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", errors.New("disk on fire")
		},
	}))

	_, err := registry.Dispatch(context.Background(), "fail", nil)
	require.Error(t, err)
	assert.Equal(t, KindToolRuntime, KindOf(err))

	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "disk on fire", terr.Message)
}

func TestDispatchRecoversPanics(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(Tool{
		Name: "explode",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			panic("boom")
		},
	}))

	out, err := registry.Dispatch(context.Background(), "explode", nil)
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, KindToolRuntime, KindOf(err))

	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Message, "boom")
}

func TestCurrentTimeTool(t *testing.T) {
	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(NewCurrentTimeTool()))

	out, err := registry.Dispatch(context.Background(), "get_current_time", nil)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "success", parsed["status"])
	assert.NotEmpty(t, parsed["current_time"])
}

func TestListFilesTool(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.txt")
	writeFile(t, dir, "a.go")
	writeFile(t, dir, ".hidden")

	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(NewListFilesTool(20)))

	out, err := registry.Dispatch(context.Background(), "list_files", map[string]interface{}{
		"path": dir,
	})
	require.NoError(t, err)

	var parsed struct {
		Status  string `json:"status"`
		Count   int    `json:"count"`
		Entries []struct {
			Name string `json:"name"`
		} `json:"entries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, "success", parsed.Status)
	assert.Equal(t, 2, parsed.Count, "hidden files are excluded by default")

	// Extension filter.
	out, err = registry.Dispatch(context.Background(), "list_files", map[string]interface{}{
		"path":       dir,
		"extensions": []interface{}{".go"},
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, 1, parsed.Count)
	assert.Equal(t, "a.go", parsed.Entries[0].Name)

	// show_hidden includes dotfiles.
	out, err = registry.Dispatch(context.Background(), "list_files", map[string]interface{}{
		"path":        dir,
		"show_hidden": true,
	})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, 3, parsed.Count)
}

func TestListFilesToolCapsResults(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		writeFile(t, dir, name)
	}

	registry := newTestRegistry(t)
	require.NoError(t, registry.Register(NewListFilesTool(3)))

	out, err := registry.Dispatch(context.Background(), "list_files", map[string]interface{}{"path": dir})
	require.NoError(t, err)

	var parsed struct {
		Count     int  `json:"count"`
		Truncated bool `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, 3, parsed.Count)
	assert.True(t, parsed.Truncated)
}
