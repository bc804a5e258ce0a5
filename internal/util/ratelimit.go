package util

import (
	"context"
	"sync"
	"time"
)

// RateLimiter paces calls against the data service, which throttles bulk
// history downloads per minute. A single token refills continuously at the
// configured rate; holding at most one keeps download bursts out entirely.
type RateLimiter struct {
	mu     sync.Mutex
	perSec float64
	tokens float64
	last   time.Time
}

// NewRateLimiter builds a limiter admitting perMinute calls per minute. The
// first call passes immediately.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		perSec: float64(perMinute) / 60.0,
		tokens: 1,
		last:   time.Now(),
	}
}

// Wait blocks until the limiter admits one call or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	for {
		if l.take() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// take refills the bucket for the elapsed interval and consumes a token if
// one is available.
func (l *RateLimiter) take() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.perSec
	if l.tokens > 1 {
		l.tokens = 1
	}
	l.last = now

	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
