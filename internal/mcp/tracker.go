package mcp

import (
	"sync"
	"time"
)

// validationTracker records recent ragentflow_validate calls per MCP
// session so handleSimulate can nudge callers that skip validation.
// It is in-memory and advisory only.
type validationTracker struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func newValidationTracker(window time.Duration) *validationTracker {
	return &validationTracker{
		seen:   make(map[string]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Record notes that session validated the graph.
func (t *validationTracker) Record(session string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[session] = t.now()

	if len(t.seen) > 1000 {
		t.purgeStale()
	}
}

// Recent reports whether session validated within the window.
func (t *validationTracker) Recent(session string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.seen[session]
	if !ok {
		return false
	}
	if t.now().Sub(ts) > t.window {
		delete(t.seen, session)
		return false
	}
	return true
}

// purgeStale removes expired entries. Must be called with mu held.
func (t *validationTracker) purgeStale() {
	now := t.now()
	for k, ts := range t.seen {
		if now.Sub(ts) > t.window {
			delete(t.seen, k)
		}
	}
}
