// Package fetch wraps one provider connection with rate limiting, retry with
// exponential backoff, and a per-provider circuit breaker. The combination is
// the resilience boundary: transient provider trouble is absorbed here and
// degrades to "provider stale this cycle" upstream.
package fetch

import (
	"context"
	"sync"
	"time"
)

// SlidingWindowLimiter smooths request throughput: a call that would exceed
// max requests inside the window blocks until the oldest request in the
// window expires, then proceeds. Requests are never rejected.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	sent   []time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewSlidingWindowLimiter creates a limiter allowing max requests per window.
func NewSlidingWindowLimiter(max int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// SetLimit swaps the rate without dropping the in-window request history.
func (l *SlidingWindowLimiter) SetLimit(max int, window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.max = max
	l.window = window
}

// Wait blocks until a request slot is available or ctx is cancelled. On
// success the request is counted against the window.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve either records the request and returns 0, or returns how long the
// caller must wait for the oldest in-window request to expire.
func (l *SlidingWindowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Drop requests that have left the window.
	keep := 0
	for _, t := range l.sent {
		if t.After(cutoff) {
			break
		}
		keep++
	}
	l.sent = l.sent[keep:]

	if len(l.sent) < l.max {
		l.sent = append(l.sent, now)
		return 0
	}
	return l.sent[0].Add(l.window).Sub(now)
}

// InWindow returns how many requests currently count against the window.
func (l *SlidingWindowLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.sent {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
