package ratelimiter

import (
	"sync"
	"time"
)

// Limiter coalesces a stream of actions to at most one per interval.
// Forced actions always pass and restart the interval. The limiter remembers
// whether an action was suppressed since the last one that passed, so callers
// can flush it later. It is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	suppressed  bool
	now         func() time.Time
}

// New creates a new rate limiter with the specified interval.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
	}
}

// NewWithClock creates a limiter that reads time from now.
func NewWithClock(interval time.Duration, now func() time.Time) *Limiter {
	l := New(interval)
	if now != nil {
		l.now = now
	}
	return l
}

// Allow checks if an action is allowed at this time.
// Returns true if allowed (and records this as the last allowed time),
// or false with the remaining wait duration if rate-limited.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	timeSinceLast := now.Sub(l.lastAllowed)

	if l.lastAllowed.IsZero() || timeSinceLast >= l.interval {
		l.lastAllowed = now
		l.suppressed = false
		return true, 0
	}

	l.suppressed = true
	return false, l.interval - timeSinceLast
}

// AllowOrForce is Allow that always passes when force is set.
func (l *Limiter) AllowOrForce(force bool) bool {
	if force {
		l.Force()
		return true
	}
	ok, _ := l.Allow()
	return ok
}

// Force records an action that bypassed the limit.
func (l *Limiter) Force() {
	l.mu.Lock()
	l.lastAllowed = l.now()
	l.suppressed = false
	l.mu.Unlock()
}

// Suppressed reports whether an action was refused since the last one allowed.
func (l *Limiter) Suppressed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressed
}

// Reset clears the limiter state, allowing the next action immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.lastAllowed = time.Time{}
	l.suppressed = false
	l.mu.Unlock()
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
