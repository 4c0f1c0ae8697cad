// Package llm provides the completion client used by the planner and the
// interpreter. The interface is a single operation so scripted fakes stay
// trivial in tests; the production implementation sits on langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Stable error kinds surfaced to API clients.
const (
	KindNetwork         = "llm_network"
	KindRateLimited     = "llm_rate_limited"
	KindInvalidResponse = "llm_invalid_response"
	KindCancelled       = "llm_cancelled"
)

// Error is a completion failure with a stable kind.
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the stable kind from an error chain, defaulting to
// llm_network for anything unclassified.
func KindOf(err error) string {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindNetwork
}

// Options configures a single completion call. Zero values mean "use the
// client's defaults".
type Options struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string

	// JSONMode asks the vendor for a JSON-only response. The planner sets
	// it; plain execution steps do not.
	JSONMode bool
}

// Client is the single-operation completion interface.
type Client interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}
