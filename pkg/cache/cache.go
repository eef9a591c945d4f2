// Package cache provides in-process TTL caches for store state.
//
// Every cache is owned by exactly one store instance and lives for one
// signed-in session: reads are synchronous, writes happen only through
// Fetch/Set/Mutate, and Reset wipes the slot when the session ends. A fetch
// error never advances the freshness timestamp, so the next read retries
// instead of trusting a failed refresh.
//
// Concurrent callers that both observe a stale entry both invoke the fetch
// function; there is no request deduplication. Reads against the backend are
// idempotent, so the duplicate fetch costs a round trip and nothing else.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNilFetch is returned when Fetch is called without a fetch function.
var ErrNilFetch = errors.New("cache: fetch function is nil")

// Entry pairs a cached value with the time it was fetched. A zero FetchedAt
// means the value has never been fetched.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
}

// Stale reports whether the entry can no longer be trusted: never fetched,
// or fetched at least ttl ago. An entry is fresh only while now-FetchedAt
// is strictly less than ttl.
func (e Entry[V]) Stale(ttl time.Duration, now time.Time) bool {
	if e.FetchedAt.IsZero() {
		return true
	}
	return now.Sub(e.FetchedAt) >= ttl
}

// FetchOptions controls a single Fetch call.
type FetchOptions struct {
	// TTL is the freshness window for the cached entry.
	TTL time.Duration

	// Force skips the staleness check and always invokes the fetch function.
	Force bool
}

// Value is a single-slot TTL cache.
type Value[V any] struct {
	mu    sync.Mutex
	entry Entry[V]
	now   func() time.Time
}

// New creates an empty single-slot cache.
func New[V any]() *Value[V] {
	return &Value[V]{now: time.Now}
}

// NewWithClock creates a cache with an injected clock. Used in tests to pin
// staleness boundaries.
func NewWithClock[V any](now func() time.Time) *Value[V] {
	if now == nil {
		now = time.Now
	}
	return &Value[V]{now: now}
}

// Get returns the cached value if it is still fresh for the given TTL.
func (c *Value[V]) Get(ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry.Stale(ttl, c.now()) {
		var zero V
		return zero, false
	}
	return c.entry.Value, true
}

// Peek returns the cached value regardless of freshness, along with whether
// the slot has ever been fetched.
func (c *Value[V]) Peek() (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry.FetchedAt.IsZero() {
		var zero V
		return zero, false
	}
	return c.entry.Value, true
}

// FetchedAt returns the time of the last successful fetch, or the zero time.
func (c *Value[V]) FetchedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry.FetchedAt
}

// Set stores a value and stamps it as freshly fetched.
func (c *Value[V]) Set(v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = Entry[V]{Value: v, FetchedAt: c.now()}
}

// Mutate applies fn to the cached value in place and reports whether the
// slot held a value to mutate. The freshness timestamp is not advanced:
// a local patch is not a fetch.
func (c *Value[V]) Mutate(fn func(v *V)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry.FetchedAt.IsZero() {
		return false
	}
	fn(&c.entry.Value)
	return true
}

// Reset clears the slot back to never-fetched.
func (c *Value[V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = Entry[V]{}
}

// Fetch returns the cached value when it is fresh and the call is not
// forced; otherwise it invokes fetch. A successful fetch replaces the entry
// wholesale (value and timestamp). A failed fetch leaves the entry exactly
// as it was - the stale value is returned alongside the error so callers
// can keep rendering it, and the untouched timestamp makes the next call
// retry.
//
// The lock is not held across fetch: overlapping callers that both saw a
// stale entry both hit the backend, last write wins.
func (c *Value[V]) Fetch(ctx context.Context, opts FetchOptions, fetch func(ctx context.Context) (V, error)) (V, error) {
	if fetch == nil {
		var zero V
		return zero, ErrNilFetch
	}

	c.mu.Lock()
	if !opts.Force && !c.entry.Stale(opts.TTL, c.now()) {
		v := c.entry.Value
		c.mu.Unlock()
		return v, nil
	}
	prev := c.entry.Value
	c.mu.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		return prev, err
	}

	c.mu.Lock()
	c.entry = Entry[V]{Value: v, FetchedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}
