package cache

import (
	"context"
	"sync"
	"time"
)

// Keyed is a map of independently aging cache slots. Each key carries its
// own value and fetch timestamp, so refreshing one key never touches the
// freshness of another.
type Keyed[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]Entry[V]
	now     func() time.Time
}

// NewKeyed creates an empty keyed cache.
func NewKeyed[K comparable, V any]() *Keyed[K, V] {
	return &Keyed[K, V]{
		entries: make(map[K]Entry[V]),
		now:     time.Now,
	}
}

// NewKeyedWithClock creates a keyed cache with an injected clock.
func NewKeyedWithClock[K comparable, V any](now func() time.Time) *Keyed[K, V] {
	if now == nil {
		now = time.Now
	}
	return &Keyed[K, V]{
		entries: make(map[K]Entry[V]),
		now:     now,
	}
}

// Get returns the value cached under key if it is still fresh.
func (c *Keyed[K, V]) Get(key K, ttl time.Duration) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || e.Stale(ttl, c.now()) {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Peek returns the value cached under key regardless of freshness.
func (c *Keyed[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.Value, true
}

// Set stores a value under key and stamps it as freshly fetched.
func (c *Keyed[K, V]) Set(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry[V]{Value: v, FetchedAt: c.now()}
}

// Mutate applies fn to the value cached under key and reports whether the
// key held a value. The freshness timestamp is not advanced.
func (c *Keyed[K, V]) Mutate(key K, fn func(v *V)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	fn(&e.Value)
	c.entries[key] = e
	return true
}

// ResetKey drops the entry for a single key.
func (c *Keyed[K, V]) ResetKey(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Reset drops every entry.
func (c *Keyed[K, V]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]Entry[V])
}

// Len returns the number of cached keys, fresh or stale.
func (c *Keyed[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch returns the value cached under key when it is fresh and the call is
// not forced; otherwise it invokes fetch and stores the result under key.
// Error semantics match Value.Fetch: the entry is left untouched and the
// previous value is returned with the error.
func (c *Keyed[K, V]) Fetch(ctx context.Context, key K, opts FetchOptions, fetch func(ctx context.Context) (V, error)) (V, error) {
	if fetch == nil {
		var zero V
		return zero, ErrNilFetch
	}

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !opts.Force && !e.Stale(opts.TTL, c.now()) {
		c.mu.Unlock()
		return e.Value, nil
	}
	prev := e.Value
	c.mu.Unlock()

	v, err := fetch(ctx)
	if err != nil {
		return prev, err
	}

	c.mu.Lock()
	c.entries[key] = Entry[V]{Value: v, FetchedAt: c.now()}
	c.mu.Unlock()
	return v, nil
}
