// Package interp executes validated plans: a single-threaded instruction
// pointer over the step list, backed by a write-once variable environment
// and the restricted condition grammar.
package interp

import (
	"fmt"
	"strings"
)

// ErrDuplicateBinding is returned by Bind when a name is already bound. The
// environment is write-once per execution.
type ErrDuplicateBinding struct {
	Name string
}

func (e *ErrDuplicateBinding) Error() string {
	return fmt.Sprintf("duplicate_binding: variable %q already bound", e.Name)
}

// Environment is the per-execution name→string store. It is owned by one
// interpreter task and never shared; cross-task visibility goes through
// events, not through this map.
type Environment struct {
	names  []string
	values map[string]string
}

// NewEnvironment creates an empty environment.
func NewEnvironment() *Environment {
	return &Environment{values: make(map[string]string)}
}

// Seed installs a system-provided variable (user_query and friends),
// overwriting silently. Only the execution starter uses it.
func (e *Environment) Seed(name, value string) {
	if _, exists := e.values[name]; !exists {
		e.names = append(e.names, name)
	}
	e.values[name] = value
}

// Bind installs a step output. Names are write-once.
func (e *Environment) Bind(name, value string) error {
	if _, exists := e.values[name]; exists {
		return &ErrDuplicateBinding{Name: name}
	}
	e.names = append(e.names, name)
	e.values[name] = value
	return nil
}

// Lookup returns the value bound to name.
func (e *Environment) Lookup(name string) (string, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Snapshot copies the current bindings in binding order.
func (e *Environment) Snapshot() map[string]string {
	out := make(map[string]string, len(e.values))
	for name, value := range e.values {
		out[name] = value
	}
	return out
}

// Names returns bound names in binding order.
func (e *Environment) Names() []string {
	return append([]string(nil), e.names...)
}

// Render substitutes {name} references in template against the environment.
// Doubled braces are literal single braces. An unresolved reference yields
// the empty string and is recorded in the missing list. Substituted values
// are inserted verbatim; there is no recursive expansion.
func (e *Environment) Render(template string) (text string, used []string, missing []string) {
	var b strings.Builder
	b.Grow(len(template))

	seenUsed := map[string]bool{}
	seenMissing := map[string]bool{}

	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := refEnd(template, i)
			if end < 0 {
				// Not a reference; braces around non-identifiers pass through.
				b.WriteByte('{')
				i++
				continue
			}
			name := template[i+1 : end]
			if value, ok := e.values[name]; ok {
				b.WriteString(value)
				if !seenUsed[name] {
					seenUsed[name] = true
					used = append(used, name)
				}
			} else if !seenMissing[name] {
				seenMissing[name] = true
				missing = append(missing, name)
			}
			i = end + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), used, missing
}

// refEnd returns the index of the closing brace of a {identifier} reference
// starting at open, or -1 when the span is not a reference.
func refEnd(s string, open int) int {
	i := open + 1
	if i >= len(s) || !isIdentStart(s[i]) {
		return -1
	}
	i++
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	if i < len(s) && s[i] == '}' {
		return i
	}
	return -1
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
