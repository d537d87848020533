package services

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// UnknownClient is the shared identity used when no client address can be derived.
	UnknownClient = "unknown"

	// RateLimitExceeded is the reason reported for rejected requests.
	RateLimitExceeded = "Rate limit exceeded"

	DefaultMaxClientEntries = 100000
)

// LimitResult is the outcome of a single ClientLimiter.Check call
type LimitResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

type clientEntry struct {
	identity string
	lastSeen time.Time
}

// ClientLimiter throttles inbound requests per client identity. An identity is
// accepted at most once per window; rejected calls never move the window.
//
// Entries are kept in a recency list (most recently accepted at the front) so
// that the cap and the idle sweep can evict from the back without scanning.
// The cap never evicts an identity that is still inside its window.
type ClientLimiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	now        func() time.Time
}

// LimiterOption configures a ClientLimiter
type LimiterOption func(*ClientLimiter)

// WithClock replaces the limiter's time source
func WithClock(now func() time.Time) LimiterOption {
	return func(l *ClientLimiter) {
		l.now = now
	}
}

// WithMaxEntries caps the number of tracked identities
func WithMaxEntries(n int) LimiterOption {
	return func(l *ClientLimiter) {
		if n > 0 {
			l.maxEntries = n
		}
	}
}

// NewClientLimiter creates a new per-client limiter
func NewClientLimiter(opts ...LimiterOption) *ClientLimiter {
	l := &ClientLimiter{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: DefaultMaxClientEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check accepts the request if identity has not been accepted within window.
// A window of zero or less disables throttling.
func (l *ClientLimiter) Check(identity string, window time.Duration) LimitResult {
	if identity == "" {
		identity = UnknownClient
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if elem, ok := l.entries[identity]; ok {
		entry := elem.Value.(*clientEntry)
		if window > 0 && now.Sub(entry.lastSeen) < window {
			return LimitResult{Accepted: false, Reason: RateLimitExceeded}
		}
		entry.lastSeen = now
		l.order.MoveToFront(elem)
		return LimitResult{Accepted: true}
	}

	// At the cap only an identity whose window has passed may be evicted.
	// While every tracked identity is still throttled, newcomers are rejected.
	if l.order.Len() >= l.maxEntries {
		oldest := l.order.Back().Value.(*clientEntry)
		if window > 0 && now.Sub(oldest.lastSeen) < window {
			return LimitResult{Accepted: false, Reason: RateLimitExceeded}
		}
		l.evictOldest()
	}
	l.entries[identity] = l.order.PushFront(&clientEntry{identity: identity, lastSeen: now})

	return LimitResult{Accepted: true}
}

// Len returns the number of tracked identities
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// Sweep removes identities whose last accepted request is older than retention.
// Retention should be a multiple of the largest window in use.
func (l *ClientLimiter) Sweep(retention time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-retention)
	removed := 0
	for elem := l.order.Back(); elem != nil; elem = l.order.Back() {
		if !elem.Value.(*clientEntry).lastSeen.Before(cutoff) {
			break
		}
		l.evictOldest()
		removed++
	}
	return removed
}

// Run sweeps idle identities every interval until ctx is cancelled
func (l *ClientLimiter) Run(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Rate limiter sweep started", "interval", interval, "retention", retention)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Rate limiter sweep stopped")
			return
		case <-ticker.C:
			if count := l.Sweep(retention); count > 0 {
				slog.Info("Evicted idle rate limit entries", "count", count, "remaining", l.Len())
			}
		}
	}
}

// evictOldest must be called with mu held
func (l *ClientLimiter) evictOldest() {
	elem := l.order.Back()
	if elem == nil {
		return
	}
	l.order.Remove(elem)
	delete(l.entries, elem.Value.(*clientEntry).identity)
}
