package auth

import (
	"sync"
	"time"
)

// KeyedLimiter fans a RateLimiter out per key, so one abusive client can't
// exhaust the quota every other client hitting the same endpoint shares. Used
// to bound password-login attempts and worker-registration bursts, each keyed
// by the caller's remote address, independently of one another.
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
	rate     int64
	interval time.Duration
}

// NewKeyedLimiter builds a limiter allowing rate events per interval,
// tracked independently per key.
func NewKeyedLimiter(rate int64, interval time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limiters: make(map[string]*RateLimiter),
		rate:     rate,
		interval: interval,
	}
}

// Allow reports whether key may proceed, lazily creating a fresh bucket the
// first time a key is seen.
func (k *KeyedLimiter) Allow(key string) bool {
	k.mu.Lock()
	rl, ok := k.limiters[key]
	if !ok {
		rl = NewRateLimiter(k.rate, k.interval)
		k.limiters[key] = rl
	}
	k.mu.Unlock()
	return rl.Allow()
}
