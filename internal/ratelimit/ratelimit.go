// Package ratelimit throttles expensive endpoints per client.
//
// The server ships an in-memory token bucket (MemoryLimiter); the Limiter
// interface lets a shared store replace it when several replicas serve the
// same clients.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until a token is available. Zero when allowed.
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow consumes one token for key. An error signals a limiter
	// malfunction; callers fail open.
	Allow(ctx context.Context, key string) (Decision, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

type clientKey struct{}

// WithClientKey returns ctx carrying the rate limit key of the caller, for
// limits applied below the HTTP layer.
func WithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKey{}, key)
}

// ClientKeyFromContext returns the key set by WithClientKey, or "".
func ClientKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(clientKey{}).(string)
	return key
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always allows.
func (NoopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
