package http

import (
	"sync"
	"time"
)

// JoinRateLimiter is a sliding-window limit on join attempts per client token.
type JoinRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewJoinRateLimiter(limit int, interval time.Duration) *JoinRateLimiter {
	return &JoinRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow records an attempt for client and reports whether it fits the window.
// A non-positive limit disables limiting.
func (rl *JoinRateLimiter) Allow(client string) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[client]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[client] = fresh
		return false
	}
	rl.history[client] = append(fresh, now)
	rl.prune(windowStart)
	return true
}

// prune drops clients with no attempt inside the window.
func (rl *JoinRateLimiter) prune(windowStart time.Time) {
	for client, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, client)
		}
	}
}
