// Package cache provides the process-lifetime result cache used by the
// resolver. Entries carry the time they were stored; an entry older than the
// store's TTL is reported as stale but stays in place until overwritten.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// NoExpiry keeps entries fresh for the lifetime of the process.
const NoExpiry time.Duration = 0

// Store is a thread-safe key/value map with a fixed time-to-live.
type Store[V any] struct {
	ttl   time.Duration
	clock clockwork.Clock

	mu      sync.RWMutex
	entries map[string]entry[V]
}

type entry[V any] struct {
	value    V
	storedAt time.Time
}

// New creates a Store whose entries go stale after ttl. A ttl of NoExpiry
// (or any non-positive value) never goes stale. A nil clock uses real time.
func New[V any](ttl time.Duration, clock clockwork.Clock) *Store[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store[V]{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the value stored under key. found is false if nothing was ever
// stored; fresh is true iff found and the entry is within the TTL.
func (s *Store[V]) Get(key string) (value V, found, fresh bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return value, false, false
	}
	return e.value, true, s.isFresh(e)
}

// Set stores value under key with the current time, replacing any previous entry.
func (s *Store[V]) Set(key string, value V) {
	e := entry[V]{value: value, storedAt: s.clock.Now()}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()
}

// Len returns the number of entries, stale ones included.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// TTL returns the configured time-to-live.
func (s *Store[V]) TTL() time.Duration { return s.ttl }

func (s *Store[V]) isFresh(e entry[V]) bool {
	if s.ttl <= 0 {
		return true
	}
	return s.clock.Since(e.storedAt) <= s.ttl
}
