// Package ratelimit gates outbound completion calls with a sliding
// per-minute window. Callers that hit the limit sleep and recheck instead of
// failing the request.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/ldschema/errors"
)

// Limiter enforces max calls per time window using a sliding window
type Limiter struct {
	maxCallsPerMinute int
	window            time.Duration
	pollInterval      time.Duration
	mu                sync.Mutex
	callTimes         []time.Time
	timeNow           func() time.Time // Injectable for testing
}

// NewLimiter creates a rate limiter with real time. A max of 0 or less
// disables limiting.
func NewLimiter(maxCallsPerMinute int) *Limiter {
	return NewLimiterWithClock(maxCallsPerMinute, time.Now)
}

// NewLimiterWithClock creates a rate limiter with injectable clock (for testing)
func NewLimiterWithClock(maxCallsPerMinute int, timeNow func() time.Time) *Limiter {
	capacity := maxCallsPerMinute
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		maxCallsPerMinute: maxCallsPerMinute,
		window:            60 * time.Second,
		pollInterval:      100 * time.Millisecond,
		callTimes:         make([]time.Time, 0, capacity),
		timeNow:           timeNow,
	}
}

// SetPollInterval changes how often Wait rechecks
func (r *Limiter) SetPollInterval(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pollInterval = d
}

// Allow records a call if one is allowed, or returns an error wrapping
// errors.ErrRateLimited
func (r *Limiter) Allow() error {
	if r.maxCallsPerMinute <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	r.removeExpiredCalls(now)

	if len(r.callTimes) >= r.maxCallsPerMinute {
		err := errors.Wrapf(errors.ErrRateLimited, "%d calls per minute (limit: %d)",
			len(r.callTimes), r.maxCallsPerMinute)
		err = errors.WithDetail(err, fmt.Sprintf("Retry after: %s", r.retryAfter(now)))
		return err
	}

	r.callTimes = append(r.callTimes, now)
	return nil
}

// Wait blocks until a call is allowed. Returns the context error if the
// context ends first.
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		if err := r.Allow(); err == nil {
			return nil
		}

		r.mu.Lock()
		poll := r.pollInterval
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// removeExpiredCalls drops timestamps outside the window. Must be called
// with lock held.
func (r *Limiter) removeExpiredCalls(now time.Time) {
	cutoff := now.Add(-r.window)

	expired := 0
	for _, callTime := range r.callTimes {
		if !callTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	r.callTimes = r.callTimes[expired:]
}

// retryAfter is the time until the oldest call leaves the window. Must be
// called with lock held.
func (r *Limiter) retryAfter(now time.Time) time.Duration {
	if len(r.callTimes) == 0 {
		return 0
	}
	d := r.callTimes[0].Add(r.window).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Reset clears the rate limiter state
func (r *Limiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.callTimes = r.callTimes[:0]
}

// Stats returns current rate limiter statistics
func (r *Limiter) Stats() (callsInWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExpiredCalls(r.timeNow())

	callsInWindow = len(r.callTimes)
	remaining = r.maxCallsPerMinute - callsInWindow
	if remaining < 0 {
		remaining = 0
	}

	return callsInWindow, remaining
}
