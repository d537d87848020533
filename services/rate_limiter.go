package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RateLimiter paces outbound calls to third-party APIs (Anthropic, Graph API)
// to a number of requests per minute. Unlike ClientLimiter it waits instead of
// rejecting.
type RateLimiter struct {
	mu                sync.Mutex
	name              string
	requestsPerMinute int
	lastRequests      []time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(name string, rpm int) *RateLimiter {
	return &RateLimiter{
		name:              name,
		requestsPerMinute: rpm,
		lastRequests:      make([]time.Time, 0),
	}
}

// Wait blocks until a request can be made within rate limits
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil || r.requestsPerMinute <= 0 {
		return nil
	}

	for {
		waitDuration := r.reserve(time.Now())
		if waitDuration <= 0 {
			return nil
		}

		slog.Info("Rate limit reached, waiting...",
			"api", r.name,
			"waitSeconds", waitDuration.Seconds(),
			"rpm", r.requestsPerMinute,
		)

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			// Retry the reservation after the wait
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// reserve records a request at now if the window has room and returns zero,
// otherwise it returns how long to wait before trying again.
func (r *RateLimiter) reserve(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	windowStart := now.Add(-time.Minute)

	// Remove old requests outside the window
	validRequests := r.lastRequests[:0]
	for _, t := range r.lastRequests {
		if t.After(windowStart) {
			validRequests = append(validRequests, t)
		}
	}
	r.lastRequests = validRequests

	if len(r.lastRequests) >= r.requestsPerMinute {
		return r.lastRequests[0].Add(time.Minute).Sub(now)
	}

	r.lastRequests = append(r.lastRequests, now)
	return 0
}
