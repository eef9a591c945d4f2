package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestEntryStaleBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ttl := 5 * time.Minute

	var never Entry[int]
	assert.True(t, never.Stale(ttl, now), "never-fetched entry must be stale")

	justUnder := Entry[int]{Value: 1, FetchedAt: now.Add(-ttl + time.Millisecond)}
	assert.False(t, justUnder.Stale(ttl, now))

	exactly := Entry[int]{Value: 1, FetchedAt: now.Add(-ttl)}
	assert.True(t, exactly.Stale(ttl, now), "entry fetched exactly ttl ago must be stale")

	over := Entry[int]{Value: 1, FetchedAt: now.Add(-ttl - time.Millisecond)}
	assert.True(t, over.Stale(ttl, now))
}

func TestValueFetchUsesCacheWhileFresh(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock[string](clock.Now)
	opts := FetchOptions{TTL: time.Minute}

	calls := 0
	fetch := func(ctx context.Context) (string, error) {
		calls++
		return "fetched", nil
	}

	v, err := c.Fetch(context.Background(), opts, fetch)
	assert.NoError(t, err)
	assert.Equal(t, "fetched", v)
	assert.Equal(t, 1, calls)

	clock.Advance(30 * time.Second)
	v, err = c.Fetch(context.Background(), opts, fetch)
	assert.NoError(t, err)
	assert.Equal(t, "fetched", v)
	assert.Equal(t, 1, calls, "fresh entry must not refetch")

	clock.Advance(30 * time.Second)
	_, err = c.Fetch(context.Background(), opts, fetch)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls, "entry aged to the ttl must refetch")
}

func TestValueFetchForceBypassesFreshness(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock[int](clock.Now)

	calls := 0
	fetch := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	_, err := c.Fetch(context.Background(), FetchOptions{TTL: time.Hour}, fetch)
	assert.NoError(t, err)

	v, err := c.Fetch(context.Background(), FetchOptions{TTL: time.Hour, Force: true}, fetch)
	assert.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestValueFetchErrorKeepsEntry(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock[string](clock.Now)
	opts := FetchOptions{TTL: time.Minute}

	_, err := c.Fetch(context.Background(), opts, func(ctx context.Context) (string, error) {
		return "first", nil
	})
	assert.NoError(t, err)
	fetchedAt := c.FetchedAt()

	clock.Advance(2 * time.Minute)

	boom := errors.New("backend down")
	v, err := c.Fetch(context.Background(), opts, func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "first", v, "failed refresh must hand back the stale value")
	assert.Equal(t, fetchedAt, c.FetchedAt(), "failed refresh must not advance the timestamp")

	calls := 0
	v, err = c.Fetch(context.Background(), opts, func(ctx context.Context) (string, error) {
		calls++
		return "second", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, calls, "entry left stale by the error must retry immediately")
}

func TestValueFetchErrorBeforeFirstSuccess(t *testing.T) {
	c := New[[]int]()

	boom := errors.New("nope")
	v, err := c.Fetch(context.Background(), FetchOptions{TTL: time.Minute}, func(ctx context.Context) ([]int, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, v)
	assert.True(t, c.FetchedAt().IsZero())

	_, ok := c.Peek()
	assert.False(t, ok)
}

func TestValueFetchNilFetch(t *testing.T) {
	c := New[int]()
	_, err := c.Fetch(context.Background(), FetchOptions{TTL: time.Minute}, nil)
	assert.ErrorIs(t, err, ErrNilFetch)
}

func TestValueSetAndGet(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock[int](clock.Now)

	_, ok := c.Get(time.Minute)
	assert.False(t, ok)

	c.Set(42)
	v, ok := c.Get(time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 42, v)

	clock.Advance(time.Minute)
	_, ok = c.Get(time.Minute)
	assert.False(t, ok, "value aged to the ttl must read as stale")

	v, ok = c.Peek()
	assert.True(t, ok, "peek ignores freshness")
	assert.Equal(t, 42, v)
}

func TestValueMutateKeepsTimestamp(t *testing.T) {
	clock := newFakeClock()
	c := NewWithClock[[]string](clock.Now)

	ok := c.Mutate(func(v *[]string) { *v = append(*v, "x") })
	assert.False(t, ok, "mutate on a never-fetched slot must be a no-op")

	c.Set([]string{"a"})
	stamped := c.FetchedAt()
	clock.Advance(10 * time.Second)

	ok = c.Mutate(func(v *[]string) { *v = append(*v, "b") })
	assert.True(t, ok)

	v, _ := c.Peek()
	assert.Equal(t, []string{"a", "b"}, v)
	assert.Equal(t, stamped, c.FetchedAt(), "a local patch is not a fetch")
}

func TestValueReset(t *testing.T) {
	c := New[int]()
	c.Set(7)

	c.Reset()

	_, ok := c.Peek()
	assert.False(t, ok)
	assert.True(t, c.FetchedAt().IsZero())
}
