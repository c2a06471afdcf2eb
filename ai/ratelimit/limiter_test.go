package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ldschema/errors"
)

// mockClock allows controlling time in tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestLimiter_AtLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, clock.Now)

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Allow(), "call %d", i+1)
		clock.Advance(100 * time.Millisecond)
	}

	err := limiter.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRateLimited))
	assert.True(t, errors.IsRetryable(err))
}

func TestLimiter_SlidingWindow(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(2, clock.Now)

	require.NoError(t, limiter.Allow())
	clock.Advance(30 * time.Second)
	require.NoError(t, limiter.Allow())
	assert.Error(t, limiter.Allow())

	// First call leaves the window, second is still inside
	clock.Advance(31 * time.Second)
	require.NoError(t, limiter.Allow())
	assert.Error(t, limiter.Allow())

	calls, remaining := limiter.Stats()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, remaining)
}

func TestLimiter_Unlimited(t *testing.T) {
	limiter := NewLimiter(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, limiter.Allow())
	}
}

func TestLimiter_Reset(t *testing.T) {
	limiter := NewLimiter(1)
	require.NoError(t, limiter.Allow())
	assert.Error(t, limiter.Allow())

	limiter.Reset()
	assert.NoError(t, limiter.Allow())
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(100)

	var wg sync.WaitGroup
	results := make(chan bool, 200)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				results <- limiter.Allow() == nil
			}
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for ok := range results {
		if ok {
			success++
		}
	}
	assert.Equal(t, 100, success)
}

func TestLimiter_WaitSleepsAndRechecks(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)
	limiter.SetPollInterval(5 * time.Millisecond)
	require.NoError(t, limiter.Allow())

	done := make(chan error, 1)
	go func() { done <- limiter.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned while the window was full")
	case <-time.After(30 * time.Millisecond):
	}

	clock.Advance(61 * time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after the window expired")
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	limiter := NewLimiter(1)
	limiter.SetPollInterval(5 * time.Millisecond)
	require.NoError(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
