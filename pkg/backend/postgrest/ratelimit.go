package postgrest

import (
	"context"
	"sync"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token bucket
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig configures the client-side token bucket. The hosted API
// also rate-limits server-side; the local bucket exists to smooth bursts
// (a dashboard firing five queries at once) below that ceiling.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate.
	RequestsPerSecond float64

	// BurstSize is how many requests may fire back to back.
	BurstSize int

	// MinInterval is the minimum spacing between requests, even with
	// tokens available. Zero disables spacing.
	MinInterval time.Duration

	// WaitTimeout caps how long a caller blocks waiting for a token.
	WaitTimeout time.Duration
}

// DefaultRateLimitConfig returns defaults sized for interactive app
// traffic.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 10.0,
		BurstSize:         20,
		MinInterval:       0,
		WaitTimeout:       10 * time.Second,
	}
}

// RateLimiter is a token bucket. A server-side 429 empties the bucket and
// pauses draws until the advertised retry window has passed.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64
	tokens      float64
	lastRefill  time.Time
	minInterval time.Duration
	lastRequest time.Time
	waitTimeout time.Duration
	pausedUntil time.Time
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	now := time.Now()
	return &RateLimiter{
		maxTokens:   float64(cfg.BurstSize),
		refillRate:  cfg.RequestsPerSecond,
		tokens:      float64(cfg.BurstSize),
		lastRefill:  now,
		minInterval: cfg.MinInterval,
		lastRequest: now.Add(-cfg.MinInterval),
		waitTimeout: cfg.WaitTimeout,
	}
}

// Wait blocks until a token is available, the context is done, or the wait
// timeout is exceeded. A timeout surfaces as a *backend.RateLimitError so
// callers classify it like a server-side 429.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	deadline := time.Now().Add(rl.waitTimeout)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		waitTime, ok := rl.tryAcquire()
		if ok {
			return nil
		}

		if time.Now().Add(waitTime).After(deadline) {
			return &backend.RateLimitError{
				RetryAfter: waitTime,
				Message:    "client rate limit exceeded",
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// TryAcquire reports whether a request may proceed right now.
func (rl *RateLimiter) TryAcquire() bool {
	_, ok := rl.tryAcquire()
	return ok
}

// tryAcquire consumes a token if one is available. On failure it returns
// how long to wait before the next attempt.
func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if now.Before(rl.pausedUntil) {
		return rl.pausedUntil.Sub(now), false
	}

	rl.refill(now)

	if rl.minInterval > 0 {
		if since := now.Sub(rl.lastRequest); since < rl.minInterval {
			return rl.minInterval - since, false
		}
	}

	if rl.tokens < 1.0 {
		needed := 1.0 - rl.tokens
		return time.Duration(needed / rl.refillRate * float64(time.Second)), false
	}

	rl.tokens--
	rl.lastRequest = now
	return 0, true
}

// refill adds tokens for the elapsed time. Must be called with the lock
// held.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// RecordRateLimitHit reacts to a server-side 429: the bucket is emptied and
// draws pause until the advertised retry window has passed.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = 0
	rl.lastRefill = time.Now()
	if retryAfter > 0 {
		rl.pausedUntil = time.Now().Add(retryAfter)
	}
}

// Reset restores a full, unpaused bucket.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.tokens = rl.maxTokens
	rl.lastRefill = time.Now()
	rl.lastRequest = time.Now().Add(-rl.minInterval)
	rl.pausedUntil = time.Time{}
}
