package acceptor

import (
	"sync"
	"time"
)

// RateLimiter rejects a connection attempt once more than N attempts
// have landed within the trailing window W. It tracks exact arrival
// timestamps rather than a token bucket so "more than N within W
// seconds" holds precisely, matching the acceptor's stated contract.
type RateLimiter struct {
	n      int
	window time.Duration

	mu    sync.Mutex
	stamp []time.Time
}

// NewRateLimiter returns a limiter permitting up to n attempts in any
// trailing window of the given duration.
func NewRateLimiter(n int, window time.Duration) *RateLimiter {
	return &RateLimiter{n: n, window: window}
}

// Allow records an attempt at now and reports whether it falls within
// the limit, after evicting timestamps older than the window.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	kept := r.stamp[:0]
	for _, s := range r.stamp {
		if s.After(cutoff) {
			kept = append(kept, s)
		}
	}
	r.stamp = kept

	if len(r.stamp) >= r.n {
		r.stamp = append(r.stamp, now)
		return false
	}
	r.stamp = append(r.stamp, now)
	return true
}
