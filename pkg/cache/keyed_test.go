package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedFreshnessIsPerKey(t *testing.T) {
	clock := newFakeClock()
	c := NewKeyedWithClock[string, int](clock.Now)
	ttl := time.Minute

	c.Set("a", 1)
	clock.Advance(45 * time.Second)
	c.Set("b", 2)
	clock.Advance(30 * time.Second)

	_, ok := c.Get("a", ttl)
	assert.False(t, ok, "a is 75s old and must be stale")

	v, ok := c.Get("b", ttl)
	assert.True(t, ok, "b is 30s old and must still be fresh")
	assert.Equal(t, 2, v)
}

func TestKeyedFetchCachesPerKey(t *testing.T) {
	clock := newFakeClock()
	c := NewKeyedWithClock[string, string](clock.Now)
	opts := FetchOptions{TTL: time.Minute}

	calls := map[string]int{}
	fetchFor := func(key string) func(context.Context) (string, error) {
		return func(ctx context.Context) (string, error) {
			calls[key]++
			return "v:" + key, nil
		}
	}

	v, err := c.Fetch(context.Background(), "2026-03", opts, fetchFor("2026-03"))
	assert.NoError(t, err)
	assert.Equal(t, "v:2026-03", v)

	_, err = c.Fetch(context.Background(), "2026-02", opts, fetchFor("2026-02"))
	assert.NoError(t, err)

	_, err = c.Fetch(context.Background(), "2026-03", opts, fetchFor("2026-03"))
	assert.NoError(t, err)

	assert.Equal(t, 1, calls["2026-03"], "fresh key must not refetch")
	assert.Equal(t, 1, calls["2026-02"])
}

func TestKeyedFetchErrorKeepsEntry(t *testing.T) {
	clock := newFakeClock()
	c := NewKeyedWithClock[string, int](clock.Now)
	opts := FetchOptions{TTL: time.Minute}

	_, err := c.Fetch(context.Background(), "k", opts, func(ctx context.Context) (int, error) {
		return 10, nil
	})
	assert.NoError(t, err)

	clock.Advance(2 * time.Minute)

	boom := errors.New("backend down")
	v, err := c.Fetch(context.Background(), "k", opts, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 10, v)

	peeked, ok := c.Peek("k")
	assert.True(t, ok)
	assert.Equal(t, 10, peeked)
}

func TestKeyedMutate(t *testing.T) {
	c := NewKeyed[string, []int]()

	assert.False(t, c.Mutate("missing", func(v *[]int) { *v = append(*v, 1) }))

	c.Set("k", []int{1})
	assert.True(t, c.Mutate("k", func(v *[]int) { *v = append(*v, 2) }))

	v, _ := c.Peek("k")
	assert.Equal(t, []int{1, 2}, v)
}

func TestKeyedResetKey(t *testing.T) {
	c := NewKeyed[string, int]()
	c.Set("a", 1)
	c.Set("b", 2)

	c.ResetKey("a")

	_, ok := c.Peek("a")
	assert.False(t, ok)
	v, ok := c.Peek("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestKeyedReset(t *testing.T) {
	c := NewKeyed[string, int]()
	c.Set("a", 1)
	c.Set("b", 2)

	c.Reset()

	assert.Equal(t, 0, c.Len())
	_, ok := c.Peek("a")
	assert.False(t, ok)
}
