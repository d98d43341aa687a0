// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides approximate token counting for chat model text.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter for the specified model.
// All supported backends (OpenAI-compatible, Claude, Gemini) are approximated
// with the GPT-4 encoding; exact counts only matter for usage metrics, not
// billing, so one encoding keeps the numbers comparable across providers.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}

	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		// Fallback to character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		// Fallback to character-based estimation on error
		return len(text) / 4
	}

	return count
}

//nolint:gochecknoglobals // Codec construction loads BPE tables, do it once
var (
	simpleCounter     *TokenCounter
	simpleCounterOnce sync.Once
)

// CountTokensSimple provides a simple token counting function without requiring
// a TokenCounter instance. Uses GPT-4 encoding, falling back to character-based
// estimation when the tokenizer is unavailable.
func CountTokensSimple(text string) int {
	simpleCounterOnce.Do(func() {
		if counter, err := NewTokenCounter("gpt-4"); err == nil {
			simpleCounter = counter
		}
	})
	if simpleCounter == nil {
		return len(text) / 4
	}
	return simpleCounter.CountTokens(text)
}
