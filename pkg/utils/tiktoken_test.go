package utils

import (
	"strings"
	"testing"
)

func TestNewTokenCounter(t *testing.T) {
	tests := []struct {
		model string
	}{
		{"gpt-4"},
		{"gpt-3.5-turbo"},
		{"claude-sonnet-4-5"},
		{"gemini-2.0-flash"},
		{"unknown-model"}, // Should default to gpt-4 encoding
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			counter, err := NewTokenCounter(tt.model)
			if err != nil {
				t.Errorf("NewTokenCounter(%s) failed: %v", tt.model, err)
			}
			if counter == nil {
				t.Errorf("NewTokenCounter(%s) returned nil counter", tt.model)
			}
		})
	}
}

func TestCountTokens(t *testing.T) {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		t.Fatalf("Failed to create token counter: %v", err)
	}

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"Hello", 1, 2},
		{"Hello world", 2, 3},
		{"This is a longer sentence with more words.", 8, 12},
		{strings.Repeat("word ", 100), 90, 110}, // ~100 tokens
	}

	for _, tt := range tests {
		name := tt.text
		if len(name) > 20 {
			name = name[:20]
		}
		t.Run(name, func(t *testing.T) {
			tokens := counter.CountTokens(tt.text)
			if tokens < tt.minTokens || tokens > tt.maxTokens {
				t.Errorf("CountTokens(%q) = %d, want between %d and %d",
					tt.text, tokens, tt.minTokens, tt.maxTokens)
			}
		})
	}
}

func TestCountTokensSimple(t *testing.T) {
	tokens := CountTokensSimple("Hello world")
	if tokens < 2 || tokens > 3 {
		t.Errorf("CountTokensSimple(\"Hello world\") = %d, want between 2 and 3", tokens)
	}
}

func TestCountTokensFallback(t *testing.T) {
	// A counter without a codec falls back to the 4-chars-per-token estimate.
	counter := &TokenCounter{}
	text := strings.Repeat("a", 400)

	if got := counter.CountTokens(text); got != 100 {
		t.Errorf("expected fallback estimate 100, got %d", got)
	}
}
