// Package llm provides text completion clients used by judgment nodes,
// responders and the LLM reranker.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by NoopCompleter.
var ErrNotConfigured = errors.New("llm: no completion provider configured")

// Options are per-call sampling parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// DefaultOptions matches the chat settings used for simulation runs.
var DefaultOptions = Options{Temperature: 0.7, MaxTokens: 512}

// Completer produces a completion for a single user prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// NoopCompleter fails every call. It stands in when no provider is
// configured so authoring and validation still work.
type NoopCompleter struct{}

func (NoopCompleter) Complete(context.Context, string, Options) (string, error) {
	return "", ErrNotConfigured
}

// defaultTimeout bounds a single completion call when the caller passes zero.
const defaultTimeout = 60 * time.Second

func callTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}
