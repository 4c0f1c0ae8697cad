package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ExtractError reports that no JSON object could be recovered from model
// output. Pos is a byte offset into the (fence-stripped) text.
type ExtractError struct {
	Pos     int
	Message string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("malformed_json: %s (position %d)", e.Message, e.Pos)
}

// ExtractJSONObject recovers the first JSON object from model output that
// may be wrapped in markdown fences or prose. It strips code fences, takes
// the first balanced {...} span and parses it.
func ExtractJSONObject(text string) (map[string]interface{}, error) {
	stripped := stripFences(text)

	start, end, balanced := balancedObjectSpan(stripped)
	if start < 0 {
		return nil, &ExtractError{Pos: 0, Message: "no JSON object found in output"}
	}
	if !balanced {
		return nil, &ExtractError{Pos: start, Message: "unbalanced braces in output"}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(stripped[start:end]), &obj); err != nil {
		pos := start
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			pos = start + int(syntaxErr.Offset)
		}
		return nil, &ExtractError{Pos: pos, Message: err.Error()}
	}
	return obj, nil
}

// stripFences removes a ```...``` wrapper, including a language identifier
// on the opening fence. Text without fences passes through unchanged.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	first := strings.Index(trimmed, "```")
	if first < 0 {
		return trimmed
	}

	contentStart := first + 3
	if nl := strings.IndexByte(trimmed[contentStart:], '\n'); nl >= 0 {
		contentStart += nl + 1
	}
	last := strings.LastIndex(trimmed, "```")
	if last > contentStart {
		return strings.TrimSpace(trimmed[contentStart:last])
	}
	return strings.TrimSpace(trimmed[contentStart:])
}

// balancedObjectSpan locates the first balanced top-level object, tracking
// string literals and escapes so braces inside values do not count.
func balancedObjectSpan(s string) (start, end int, balanced bool) {
	start = strings.IndexByte(s, '{')
	if start < 0 {
		return -1, -1, false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return start, len(s), false
}
