package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestClientLimiter_FirstRequestAccepted(t *testing.T) {
	l := NewClientLimiter()

	res := l.Check("10.0.0.1", time.Second)

	assert.True(t, res.Accepted)
	assert.Empty(t, res.Reason)
	assert.Equal(t, 1, l.Len())
}

func TestClientLimiter_ThrottleWindow(t *testing.T) {
	window := time.Second

	for _, offset := range []time.Duration{time.Millisecond, 500 * time.Millisecond, 999 * time.Millisecond} {
		clock := newFakeClock()
		l := NewClientLimiter(WithClock(clock.Now))
		require.True(t, l.Check("X", window).Accepted)

		clock.Advance(offset)
		res := l.Check("X", window)
		assert.False(t, res.Accepted, "offset %s should be rejected", offset)
		assert.Equal(t, RateLimitExceeded, res.Reason)
	}

	for _, offset := range []time.Duration{window, window + time.Millisecond, time.Hour} {
		clock := newFakeClock()
		l := NewClientLimiter(WithClock(clock.Now))
		require.True(t, l.Check("X", window).Accepted)

		clock.Advance(offset)
		assert.True(t, l.Check("X", window).Accepted, "offset %s should be accepted", offset)
	}
}

func TestClientLimiter_RejectionDoesNotExtendWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now))

	require.True(t, l.Check("X", 1000*time.Millisecond).Accepted)

	clock.Advance(500 * time.Millisecond)
	require.False(t, l.Check("X", 1000*time.Millisecond).Accepted)

	clock.Advance(500 * time.Millisecond)
	assert.True(t, l.Check("X", 1000*time.Millisecond).Accepted, "t=1000 must be accepted despite the rejected t=500 call")
}

func TestClientLimiter_ZeroWindowDisablesThrottling(t *testing.T) {
	l := NewClientLimiter()

	for i := 0; i < 10; i++ {
		assert.True(t, l.Check("X", 0).Accepted)
	}
	assert.True(t, l.Check("X", -time.Second).Accepted)
}

func TestClientLimiter_EmptyIdentityUsesSentinel(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now))

	require.True(t, l.Check("", time.Second).Accepted)

	assert.False(t, l.Check(UnknownClient, time.Second).Accepted, "empty identity shares the unknown bucket")
	assert.False(t, l.Check("", time.Second).Accepted)
	assert.Equal(t, 1, l.Len())
}

func TestClientLimiter_IdentitiesAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now))

	require.True(t, l.Check("10.0.0.1", time.Second).Accepted)
	assert.False(t, l.Check("10.0.0.1", time.Second).Accepted)
	assert.True(t, l.Check("10.0.0.2", time.Second).Accepted)
}

func TestClientLimiter_ConcurrentSameIdentity(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now))
	window := 1000 * time.Millisecond

	// Two requests from the same address at t=0 and t=1ms, in either order.
	for round := 0; round < 50; round++ {
		var wg sync.WaitGroup
		results := make([]LimitResult, 2)
		identity := fmt.Sprintf("10.0.0.5-%d", round)

		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = l.Check(identity, window)
		}()
		go func() {
			defer wg.Done()
			results[1] = l.Check(identity, window)
		}()
		wg.Wait()

		accepted := 0
		for _, r := range results {
			if r.Accepted {
				accepted++
			}
		}
		assert.Equal(t, 1, accepted, "round %d: exactly one request must be accepted", round)
	}
}

func TestClientLimiter_ConcurrentBurst(t *testing.T) {
	l := NewClientLimiter(WithClock(newFakeClock().Now))

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("10.0.0.5", time.Second).Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
}

func TestClientLimiter_MaxEntriesEvictsLeastRecent(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now), WithMaxEntries(2))

	l.Check("a", time.Second)
	clock.Advance(time.Second)
	l.Check("b", time.Second)
	clock.Advance(time.Millisecond)

	assert.True(t, l.Check("c", time.Second).Accepted)
	assert.Equal(t, 2, l.Len())
	_, tracked := l.entries["a"]
	assert.False(t, tracked, "the identity past its window is evicted")
	// "b" is still tracked and inside its window
	assert.False(t, l.Check("b", time.Second).Accepted)
}

func TestClientLimiter_FullCapKeepsThrottledIdentities(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now), WithMaxEntries(2))

	require.True(t, l.Check("a", time.Second).Accepted)
	clock.Advance(time.Millisecond)
	require.True(t, l.Check("b", time.Second).Accepted)
	clock.Advance(time.Millisecond)

	result := l.Check("c", time.Second)
	assert.False(t, result.Accepted)
	assert.Equal(t, RateLimitExceeded, result.Reason)
	assert.Equal(t, 2, l.Len())

	// "a" was not evicted to make room, so its window still holds
	assert.False(t, l.Check("a", time.Second).Accepted)

	clock.Advance(time.Second)
	assert.True(t, l.Check("c", time.Second).Accepted, "room is made once a window has passed")
}

func TestClientLimiter_SweepRemovesIdleEntries(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now))

	l.Check("old", time.Second)
	clock.Advance(10 * time.Minute)
	l.Check("fresh", time.Second)

	removed := l.Sweep(5 * time.Minute)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())
	assert.False(t, l.Check("fresh", time.Second).Accepted, "sweep keeps recent entries")
}

func TestClientLimiter_SweepKeepsContract(t *testing.T) {
	clock := newFakeClock()
	l := NewClientLimiter(WithClock(clock.Now))

	l.Check("X", time.Second)
	clock.Advance(500 * time.Millisecond)

	assert.Equal(t, 0, l.Sweep(10*time.Second))
	assert.False(t, l.Check("X", time.Second).Accepted)
}

func TestClientLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewClientLimiter()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		l.Run(ctx, time.Millisecond, time.Minute)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
