package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("10.0.0.1"), "request %d is within the burst", i)
	}
	assert.False(t, limiter.Allow("10.0.0.1"), "burst exhausted")

	// One token refills per second at 60/min.
	time.Sleep(1100 * time.Millisecond)
	assert.True(t, limiter.Allow("10.0.0.1"))
}

func TestClientsThrottledIndependently(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		limiter.Allow("10.0.0.1")
	}

	assert.False(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.2"), "a different client has its own bucket")
}

func TestTokenRefillRate(t *testing.T) {
	limiter := New(Config{
		RequestsPerMinute: 600, // 10 per second
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	defer limiter.Stop()

	assert.True(t, limiter.Allow("c"))
	assert.False(t, limiter.Allow("c"))

	time.Sleep(120 * time.Millisecond)
	assert.True(t, limiter.Allow("c"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60, cfg.RequestsPerMinute)
	assert.Equal(t, 10, cfg.BurstSize)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
}
