// Package tokens keeps rendered prompts inside the model's context window.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// Budgeter truncates prompts to a token budget. A nil Budgeter is a no-op,
// so callers degrade gracefully when the encoding cannot be loaded.
type Budgeter struct {
	encoding *tiktoken.Tiktoken
	limit    int
}

// NewBudgeter reserves buffer tokens for the response out of maxTokens.
func NewBudgeter(maxTokens, buffer int) (*Budgeter, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive, got %d", maxTokens)
	}
	limit := maxTokens - buffer
	if limit <= 0 {
		return nil, fmt.Errorf("token buffer %d leaves no room in window %d", buffer, maxTokens)
	}

	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", encodingName, err)
	}
	return &Budgeter{encoding: encoding, limit: limit}, nil
}

// Count returns the token count of text.
func (b *Budgeter) Count(text string) int {
	if b == nil {
		return 0
	}
	return len(b.encoding.Encode(text, nil, nil))
}

// Clamp truncates text to the budget, reporting whether it was cut.
func (b *Budgeter) Clamp(text string) (string, bool) {
	if b == nil {
		return text, false
	}
	toks := b.encoding.Encode(text, nil, nil)
	if len(toks) <= b.limit {
		return text, false
	}
	return b.encoding.Decode(toks[:b.limit]), true
}
