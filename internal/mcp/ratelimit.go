package mcp

import (
	"sync"
	"time"
)

// RateLimitConfig bounds one client's request rate: max requests per window,
// plus a burst allowance above the steady rate.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	Burst       int
}

// tokenBucket is one client's bucket: refills at MaxRequests/Window,
// capped at Burst.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimiter is a per-client token-bucket limiter. There is no queuing or
// backoff: a request that finds an empty bucket is rejected outright and the
// caller decides what to do (typically: close the connection).
type RateLimiter struct {
	cfg RateLimitConfig
	mu  sync.Mutex
	now func() time.Time

	buckets map[string]*tokenBucket
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
	}
}

// Allow reports whether clientID may make one more request right now,
// consuming a token if so.
func (r *RateLimiter) Allow(clientID string) bool {
	if r.cfg.MaxRequests <= 0 || r.cfg.Window <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[clientID]
	if !ok {
		b = &tokenBucket{tokens: float64(r.burst()), lastRefill: now}
		r.buckets[clientID] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	rate := float64(r.cfg.MaxRequests) / r.cfg.Window.Seconds()
	b.tokens += elapsed * rate
	if max := float64(r.burst()); b.tokens > max {
		b.tokens = max
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (r *RateLimiter) burst() int {
	if r.cfg.Burst > 0 {
		return r.cfg.Burst
	}
	return r.cfg.MaxRequests
}

// Forget discards a client's bucket. Buckets are not removed otherwise, and
// closing a session does not call Forget, so the map keeps one entry per
// client id it has seen.
func (r *RateLimiter) Forget(clientID string) {
	r.mu.Lock()
	delete(r.buckets, clientID)
	r.mu.Unlock()
}
