package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for one request identity from the remote
// source. The bool result distinguishes not-found from failure.
type FetchFunc[T any] func(ctx context.Context) (T, bool, error)

// Result is the typed outcome of a coordinated fetch. Exactly one of the
// following holds: Found with a usable Value, NotFound (Found false, Err
// nil), or Err set — possibly alongside a stale Value when a prior cache
// entry survived the failed refresh.
type Result[T any] struct {
	Value T
	Found bool
	Stale bool
	Err   error
}

// Coordinator guards one data kind with a cache store, a TTL, and an
// at-most-one-concurrent-fetch-per-identity guarantee. Concurrent callers
// for the same identity join the in-flight attempt and all receive its
// settled outcome.
type Coordinator[T any] struct {
	store *Store[T]
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

// NewCoordinator constructs a Coordinator using the real clock.
func NewCoordinator[T any](ttl time.Duration) *Coordinator[T] {
	return NewCoordinatorWithClock[T](ttl, time.Now)
}

// NewCoordinatorWithClock constructs a Coordinator with an injected clock
// (used in tests). The store shares the same clock.
func NewCoordinatorWithClock[T any](ttl time.Duration, now func() time.Time) *Coordinator[T] {
	return &Coordinator[T]{
		store: NewStoreWithClock[T](now),
		ttl:   ttl,
		now:   now,
	}
}

type fetchOutcome[T any] struct {
	value T
	found bool
}

// Get serves the identity from cache when fresh, otherwise performs (or
// joins) a single fetch for it. A failed refresh never disturbs the prior
// cache entry: the stale value, when present, is returned alongside the
// error.
func (c *Coordinator[T]) Get(ctx context.Context, key string, fetch FetchFunc[T]) Result[T] {
	if e, ok := c.store.Get(key); ok && Fresh(e, c.now(), c.ttl) {
		return Result[T]{Value: e.Value, Found: true}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, found, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if found {
			c.store.Put(key, value)
		}
		return fetchOutcome[T]{value: value, found: found}, nil
	})

	if err != nil {
		if e, ok := c.store.Get(key); ok {
			return Result[T]{Value: e.Value, Found: true, Stale: true, Err: err}
		}
		return Result[T]{Err: err}
	}

	out := v.(fetchOutcome[T])
	if !out.found {
		return Result[T]{}
	}
	return Result[T]{Value: out.value, Found: true}
}

// Peek returns the cached value for key regardless of freshness.
func (c *Coordinator[T]) Peek(key string) (T, bool) {
	e, ok := c.store.Get(key)
	return e.Value, ok
}

// Invalidate drops the cache entry for one identity.
func (c *Coordinator[T]) Invalidate(key string) {
	c.store.Invalidate(key)
}

// InvalidateAll drops every cache entry.
func (c *Coordinator[T]) InvalidateAll() {
	c.store.InvalidateAll()
}
