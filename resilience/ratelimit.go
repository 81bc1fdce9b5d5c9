package resilience

import (
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 1
	Rate float64

	// Burst is the maximum burst size.
	// Default: 5
	Burst int

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// RateLimiter is a non-blocking token bucket. It throttles fallback
// reports so a persistent write failure does not flood stderr.
type RateLimiter struct {
	config RateLimiterConfig

	mu          sync.Mutex
	tokens      float64
	lastRefresh time.Time
	suppressed  uint64
}

// NewRateLimiter creates a new rate limiter starting with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 1
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RateLimiter{
		config:      config,
		tokens:      float64(config.Burst),
		lastRefresh: config.Now(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	rl.suppressed++
	return false
}

// TakeSuppressed returns how many calls were refused since the last call
// and resets the count.
func (rl *RateLimiter) TakeSuppressed() uint64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n := rl.suppressed
	rl.suppressed = 0
	return n
}

func (rl *RateLimiter) refillLocked() {
	now := rl.config.Now()
	elapsed := now.Sub(rl.lastRefresh)
	rl.lastRefresh = now

	rl.tokens += elapsed.Seconds() * rl.config.Rate
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}
