package util

import (
	"context"
	"time"
)

// Retry runs op until it succeeds, giving up after maxAttempts calls. Failed
// attempts back off exponentially from baseDelay; data-service downloads fail
// transiently often enough that a couple of spaced attempts usually recover.
// The error from the final attempt is returned when every call fails, and a
// cancelled context cuts the backoff short with ctx.Err().
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, op func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = op(); lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}

		backoff := baseDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return lastErr
}
