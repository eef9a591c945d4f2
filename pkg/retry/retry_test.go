package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDoReturnsOnFirstSuccess(t *testing.T) {
	attempts := 0
	err := New(WithInitialDelay(time.Millisecond)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRetriesRetryableUntilExhausted(t *testing.T) {
	attempts := 0
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithJitter(0))

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Retryable(errBoom)
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, attempts, "a retryable error must be attempted MaxAttempts times")
	assert.False(t, IsRetryable(err), "the exhausted error must come back unwrapped")
}

func TestDoStopsOnPermanent(t *testing.T) {
	attempts := 0
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(errBoom)
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, attempts, "a permanent error must not be retried")
	assert.False(t, IsPermanent(err), "the permanent error must come back unwrapped")
}

func TestDoDoesNotRetryUnmarkedErrors(t *testing.T) {
	attempts := 0
	r := New(WithMaxAttempts(5), WithInitialDelay(time.Millisecond))

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errBoom
	})

	assert.Equal(t, errBoom, err)
	assert.Equal(t, 1, attempts, "unmarked errors are permanent by default")
}

func TestDoRetryIfOverridesMarkers(t *testing.T) {
	attempts := 0
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithRetryIf(func(err error) bool { return true }),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, attempts)
}

func TestDoRecoversMidway(t *testing.T) {
	attempts := 0
	r := New(WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithJitter(0))

	err := r.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 2 {
			return Retryable(errBoom)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	attempts := 0
	r := New(WithMaxAttempts(3), WithInitialDelay(500*time.Millisecond))

	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		return Retryable(errBoom)
	})

	assert.ErrorIs(t, err, errBoom, "cancellation must surface the last operation error")
	assert.Equal(t, 1, attempts, "the backoff wait must not outlive the context")
}

func TestDoWithCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := New().Do(ctx, func(ctx context.Context) error {
		attempts++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts, "a dead context must not run the operation at all")
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	var delays []time.Duration
	r := New(
		WithMaxAttempts(5),
		WithInitialDelay(time.Millisecond),
		WithMultiplier(2),
		WithMaxDelay(4*time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		}),
	)

	err := r.Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errBoom)
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, []time.Duration{
		time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
	}, delays, "delays must double and cap at MaxDelay")
}

func TestDoWithData(t *testing.T) {
	got, err := DoWithData(context.Background(), func(ctx context.Context) (string, error) {
		return "hello", nil
	}, WithInitialDelay(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = DoWithData(context.Background(), func(ctx context.Context) (string, error) {
		return "", Permanent(errBoom)
	}, WithInitialDelay(time.Millisecond))
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, got)
}

func TestMarkersIgnoreNil(t *testing.T) {
	assert.NoError(t, Retryable(nil))
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsPermanent(nil))
}
