package server

import (
	"sync"
	"time"
)

// rateLimiter is a fixed-window counter keyed by wallet address.
type rateLimiter struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	seen map[string]*rateLimitWindow
}

type rateLimitWindow struct {
	resetAt time.Time
	count   int
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		seen:   make(map[string]*rateLimitWindow),
	}
}

func (r *rateLimiter) Allow(key string) bool {
	if key == "" {
		return false
	}
	if r.limit <= 0 || r.window <= 0 {
		return true
	}

	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.seen[key]
	if w == nil || now.After(w.resetAt) {
		w = &rateLimitWindow{resetAt: now.Add(r.window)}
		r.seen[key] = w
	}
	if w.count >= r.limit {
		return false
	}
	w.count++
	return true
}
