package mcp

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 2, Window: time.Second, Burst: 2})
	fixedNow := time.Now()
	limiter.now = func() time.Time { return fixedNow }

	if !limiter.Allow("client-a") {
		t.Fatal("first request should be allowed")
	}
	if !limiter.Allow("client-a") {
		t.Fatal("second request within burst should be allowed")
	}
	if limiter.Allow("client-a") {
		t.Fatal("third request should be rejected: burst exhausted")
	}
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Second, Burst: 1})
	current := time.Now()
	limiter.now = func() time.Time { return current }

	if !limiter.Allow("client-b") {
		t.Fatal("first request should be allowed")
	}
	if limiter.Allow("client-b") {
		t.Fatal("second request should be rejected before refill")
	}

	current = current.Add(time.Second)
	if !limiter.Allow("client-b") {
		t.Fatal("request after a full window should be allowed again")
	}
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Second, Burst: 1})
	if !limiter.Allow("a") {
		t.Fatal("client a's first request should be allowed")
	}
	if !limiter.Allow("b") {
		t.Fatal("client b's first request should be allowed independently of client a")
	}
}

func TestRateLimiter_ZeroConfigAllowsEverything(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{})
	for i := 0; i < 100; i++ {
		if !limiter.Allow("anyone") {
			t.Fatal("an unconfigured limiter must never reject")
		}
	}
}
