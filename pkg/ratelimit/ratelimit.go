// Package ratelimit implements a sliding-window request limiter keyed by
// limit name and user ID.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// RateLimit describes one named limit: at most MaxRequests within Window.
type RateLimit struct {
	MaxRequests int
	Window      time.Duration
	Name        string
}

// NewBasicRateLimit creates a rate limit allowing maxRequests per window.
func NewBasicRateLimit(maxRequests int, window time.Duration, name string) RateLimit {
	return RateLimit{
		MaxRequests: maxRequests,
		Window:      window,
		Name:        name,
	}
}

// RateLimiter tracks request timestamps per limit and user.
type RateLimiter struct {
	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

// NewRateLimiter creates an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		history: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Check records an attempt against the limit for userID and reports whether
// it is allowed. Attempts older than the window are discarded.
func (l *RateLimiter) Check(limit RateLimit, userID uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := fmt.Sprintf("%s:%d", limit.Name, userID)
	now := l.now()
	cutoff := now.Add(-limit.Window)

	recent := l.history[key][:0]
	for _, t := range l.history[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= limit.MaxRequests {
		l.history[key] = recent
		return false
	}

	l.history[key] = append(recent, now)
	return true
}
