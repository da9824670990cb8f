// Package server implements a sliding-window rate limiter for per-connection
// message throttling that protects rooms from flooding.
package server

import (
	"sync"
	"time"
)

// rateLimiter admits at most max events within any trailing window. Each
// admitted event records its timestamp; an attempt that observes the window
// already full is rejected without recording anything.
type rateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	stamps []time.Time
}

func newRateLimiter(max int, window time.Duration) *rateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Second
	}

	return &rateLimiter{
		window: window,
		max:    max,
		stamps: make([]time.Time, 0, max),
	}
}

func (rl *rateLimiter) allow() bool {
	return rl.allowAt(time.Now())
}

func (rl *rateLimiter) allowAt(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window)
	kept := rl.stamps[:0]
	for _, ts := range rl.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	rl.stamps = kept

	if len(rl.stamps) >= rl.max {
		return false
	}

	rl.stamps = append(rl.stamps, now)
	return true
}
