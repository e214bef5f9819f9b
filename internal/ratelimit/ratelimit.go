// Package ratelimit implements a sliding-window attempt counter keyed by
// operation name. State is process-local and resets on restart.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks attempt timestamps per operation within a trailing
// window. It is intentionally simple: callers pass the budget on every
// call, so different operations can share one Limiter.
type Limiter struct {
	mu       sync.Mutex
	now      func() time.Time
	attempts map[string][]time.Time
}

func New() *Limiter {
	return &Limiter{
		now:      time.Now,
		attempts: map[string][]time.Time{},
	}
}

// Allow prunes entries older than window, then checks the attempt count
// for op against max. When under budget the current attempt is recorded
// and Allow returns true; otherwise it returns false without recording.
func (l *Limiter) Allow(op string, max int, window time.Duration) bool {
	if max <= 0 || window <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.attempts[op][:0]
	for _, at := range l.attempts[op] {
		if now.Sub(at) < window {
			kept = append(kept, at)
		}
	}
	if len(kept) >= max {
		l.attempts[op] = kept
		return false
	}
	l.attempts[op] = append(kept, now)
	return true
}

// Remaining reports how many attempts are left in the current window
// without recording one.
func (l *Limiter) Remaining(op string, max int, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, at := range l.attempts[op] {
		if now.Sub(at) < window {
			n++
		}
	}
	if n >= max {
		return 0
	}
	return max - n
}

// Reset clears the recorded attempts for op.
func (l *Limiter) Reset(op string) {
	l.mu.Lock()
	delete(l.attempts, op)
	l.mu.Unlock()
}
