package cache

import (
	"sync"
	"time"
)

// Entry is one cached value with the time it was fetched. Entries are
// immutable once written and replaced wholesale on refresh.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Fresh reports whether an entry is still servable at the given instant.
// An entry whose age equals the TTL exactly is stale.
func Fresh[T any](e Entry[T], now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Store is a keyed in-memory map from request identity to Entry.
// The clock is injected so tests can control time. All methods are
// safe for concurrent use.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]Entry[T]
	now   func() time.Time
}

// NewStore constructs a Store using the real clock.
func NewStore[T any]() *Store[T] {
	return NewStoreWithClock[T](time.Now)
}

// NewStoreWithClock constructs a Store with an injected clock (used in tests).
func NewStoreWithClock[T any](now func() time.Time) *Store[T] {
	return &Store[T]{items: make(map[string]Entry[T]), now: now}
}

// Get returns the entry for key and whether one exists. Staleness is the
// caller's concern; Get never consults the clock.
func (s *Store[T]) Get(key string) (Entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	return e, ok
}

// Put writes a new entry for key, stamping FetchedAt from the clock.
func (s *Store[T]) Put(key string, value T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = Entry[T]{Value: value, FetchedAt: s.now()}
}

// Invalidate removes the entry for key, if any.
func (s *Store[T]) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
}

// InvalidateAll removes every entry.
func (s *Store[T]) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]Entry[T])
}

// Len returns the current number of entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
