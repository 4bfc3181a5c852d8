// Package ratelimit caps requests per caller identity with a fixed window.
//
// The limiter is approximate: a caller can burst up to twice the limit
// across a window edge. It protects paid upstream quotas, not fairness.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Anonymous is the identity used for callers without a bearer token.
const Anonymous = "anonymous"

// Window is the counter state for one identity.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Limiter is a per-identity fixed-window counter. Windows live for the
// lifetime of the process.
type Limiter struct {
	window      time.Duration
	maxRequests int
	clock       clockwork.Clock

	mu      sync.Mutex
	windows map[string]*Window
}

// New creates a Limiter allowing maxRequests requests per window for each identity.
func New(window time.Duration, maxRequests int, clock clockwork.Clock) *Limiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Limiter{
		window:      window,
		maxRequests: maxRequests,
		clock:       clock,
		windows:     make(map[string]*Window),
	}
}

// Allow records a request for identity and reports whether it is within the limit.
func (l *Limiter) Allow(identity string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || now.After(w.ResetAt) {
		l.windows[identity] = &Window{Count: 1, ResetAt: now.Add(l.window)}
		return true
	}
	// Count stops at maxRequests+1 once the caller is over the limit.
	if w.Count > l.maxRequests {
		return false
	}
	w.Count++
	return w.Count <= l.maxRequests
}

// Snapshot returns a copy of the window for identity.
func (l *Limiter) Snapshot(identity string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// RetryAfter returns how long identity has to wait for its window to reset.
func (l *Limiter) RetryAfter(identity string) time.Duration {
	w, ok := l.Snapshot(identity)
	if !ok {
		return 0
	}
	if d := w.ResetAt.Sub(l.clock.Now()); d > 0 {
		return d
	}
	return 0
}
