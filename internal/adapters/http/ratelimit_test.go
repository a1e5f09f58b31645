package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJoinRateLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewJoinRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "clients are limited independently")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("a"), "window slid past old attempts")
}

func TestJoinRateLimiterDisabled(t *testing.T) {
	var nilLimiter *JoinRateLimiter
	assert.True(t, nilLimiter.Allow("a"))

	rl := NewJoinRateLimiter(0, time.Second)
	for range 10 {
		assert.True(t, rl.Allow("a"))
	}
}
