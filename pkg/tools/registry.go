// Package tools holds the capability registry: schema-validated dispatch to
// in-process handlers. Handlers return strings (commonly JSON-encoded); the
// registry never interprets them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"plan-agent/pkg/logger"
)

// Stable dispatch error kinds.
const (
	KindUnknownTool      = "unknown_tool"
	KindInvalidArguments = "invalid_arguments"
	KindToolRuntime      = "tool_runtime_error"
)

// ToolError is a dispatch failure with a stable kind.
type ToolError struct {
	Kind    string
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: tool %q: %s", e.Kind, e.Tool, e.Message)
}

// KindOf extracts the stable kind from a dispatch error.
func KindOf(err error) string {
	if terr, ok := err.(*ToolError); ok {
		return terr.Kind
	}
	return KindToolRuntime
}

// Handler executes a tool call. Arguments have already been validated
// against the tool's input schema.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool couples a handler with the schema the planner advertises for it.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Handler     Handler
}

// Info is a catalog entry exposed to the planner prompt and the tools API.
type Info struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type registered struct {
	tool     Tool
	compiled *jsonschema.Schema
}

// Registry is a thread-safe name→tool mapping. Registration order is
// preserved so the catalog is stable across calls.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*registered
	log   logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		tools: make(map[string]*registered),
		log:   log,
	}
}

// Register adds a tool, compiling its input schema. Re-registering a name
// overwrites the previous handler, keeping its catalog position.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}

	var compiled *jsonschema.Schema
	if tool.InputSchema != nil {
		raw, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("tool %q input schema not serializable: %w", tool.Name, err)
		}
		compiler := jsonschema.NewCompiler()
		resource := tool.Name + ".schema.json"
		if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("tool %q input schema rejected: %w", tool.Name, err)
		}
		compiled, err = compiler.Compile(resource)
		if err != nil {
			return fmt.Errorf("tool %q input schema failed to compile: %w", tool.Name, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		r.log.Warnf("tool %q already registered, overwriting", tool.Name)
	} else {
		r.order = append(r.order, tool.Name)
	}
	r.tools[tool.Name] = &registered{tool: tool, compiled: compiled}
	r.log.Infof("tool %q registered", tool.Name)
	return nil
}

// Catalog returns all registered tools in registration order.
func (r *Registry) Catalog() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	catalog := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name].tool
		catalog = append(catalog, Info{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return catalog
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Dispatch validates args against the tool's input schema and invokes the
// handler. Handler panics are recovered and reported as runtime errors; a
// tool is never allowed to crash the interpreter.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}) (result string, err error) {
	r.mu.RLock()
	entry, exists := r.tools[name]
	r.mu.RUnlock()

	if !exists {
		return "", &ToolError{Kind: KindUnknownTool, Tool: name, Message: "no such tool registered"}
	}

	if entry.compiled != nil {
		if verr := validateArgs(entry.compiled, args); verr != nil {
			return "", &ToolError{Kind: KindInvalidArguments, Tool: name, Message: verr.Error()}
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorf("tool %q panicked: %v", name, rec)
			result = ""
			err = &ToolError{Kind: KindToolRuntime, Tool: name, Message: fmt.Sprintf("%v", rec)}
		}
	}()

	out, herr := entry.tool.Handler(ctx, args)
	if herr != nil {
		if terr, ok := herr.(*ToolError); ok {
			return "", terr
		}
		return "", &ToolError{Kind: KindToolRuntime, Tool: name, Message: herr.Error()}
	}
	return out, nil
}

// validateArgs round-trips args through JSON so the schema validator sees
// the same value shapes it would on the wire (ints become float64, etc).
func validateArgs(schema *jsonschema.Schema, args map[string]interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments not serializable: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return err
	}
	if err := schema.Validate(normalized); err != nil {
		return err
	}
	return nil
}
