package util

import (
	"context"
	"time"
)

// Retry runs fn until it succeeds, up to maxAttempts, doubling the sleep
// between attempts starting from baseDelay. When every attempt fails the
// error of the final attempt is returned; a context cancelled mid-backoff
// returns ctx.Err instead.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	backoff := baseDelay
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break // no sleep after the final attempt
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
