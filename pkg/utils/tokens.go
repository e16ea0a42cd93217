// Package utils provides tiktoken-based token counting utilities.
package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides token counting for conversation accounting.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter for the given model name. Models
// without a dedicated encoding (including Anthropic models) are approximated
// with the GPT-4 encoding.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.Model(model))
	if err != nil {
		codec, err = tokenizer.ForModel(tokenizer.GPT4)
		if err != nil {
			return nil, fmt.Errorf("create tokenizer codec: %w", err)
		}
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text. On tokenizer
// failure it falls back to character-based estimation (4 chars per token).
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens with the GPT-4 encoding, for call sites
// that do not hold a TokenCounter.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}
