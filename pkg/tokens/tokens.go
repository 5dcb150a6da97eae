// Package tokens provides tiktoken-based token counting for budgeting and usage metrics.
package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"relaybot/pkg/llm"
)

// Counter counts tokens with a GPT-4 (cl100k) encoding. Other providers tokenize
// differently; the count is an approximation for them.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a new token counter.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if c == nil || c.codec == nil {
		return fallback(text)
	}
	count, err := c.codec.Count(text)
	if err != nil {
		return fallback(text)
	}
	return count
}

// EstimatePrompt estimates the prompt tokens of a completion request.
func (c *Counter) EstimatePrompt(req llm.Request) int {
	var sb strings.Builder
	for i := range req.Messages {
		sb.WriteString(req.Messages[i].Content)
		sb.WriteByte('\n')
	}
	return c.Count(sb.String())
}

// fallback is a character-based estimate (4 chars ≈ 1 token).
func fallback(text string) int {
	return len(text) / 4
}

//nolint:gochecknoglobals // Shared codec, built once
var (
	defaultOnce    sync.Once
	defaultCounter *Counter
)

// Default returns a process-wide counter. If the codec cannot be loaded the counter
// falls back to character estimation.
func Default() *Counter {
	defaultOnce.Do(func() {
		counter, err := NewCounter()
		if err != nil {
			counter = &Counter{}
		}
		defaultCounter = counter
	})
	return defaultCounter
}

// Count counts tokens with the default counter.
func Count(text string) int {
	return Default().Count(text)
}
