package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket of capacity one, refilled continuously at a
// fixed per-minute rate. It smooths bursts of outbound API calls into an
// even stream: idle time never accumulates into a burst allowance.
type RateLimiter struct {
	mu     sync.Mutex
	rate   float64 // tokens per second
	tokens float64
	last   time.Time
}

// NewRateLimiter allows perMinute operations per minute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		rate:   float64(perMinute) / 60,
		tokens: 1, // the first call never waits
		last:   time.Now(),
	}
}

// Wait blocks until the bucket holds a full token or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// take refills the bucket for the elapsed time, capped at one token, and
// consumes a token when a full one is available.
func (rl *RateLimiter) take() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.last).Seconds() * rl.rate
	rl.last = now
	if rl.tokens > 1 {
		rl.tokens = 1
	}
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
