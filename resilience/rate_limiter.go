package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds its rate.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	// Rate is the number of tokens added per second. Zero or less means 10.
	Rate float64
	// Burst is the bucket size. Zero or less means Rate rounded down, at least 1.
	Burst int
}

func (c *RateLimiterConfig) applyDefaults() {
	if c.Rate <= 0 {
		c.Rate = 10
	}
	if c.Burst <= 0 {
		c.Burst = max(int(c.Rate), 1)
	}
}

// RateLimiter is a token bucket. It starts full.
type RateLimiter struct {
	config RateLimiterConfig
	now    func() time.Time

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastTaken  time.Time
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return newRateLimiter(config, time.Now)
}

func newRateLimiter(config RateLimiterConfig, now func() time.Time) *RateLimiter {
	config.applyDefaults()
	t := now()
	return &RateLimiter{
		config:     config,
		now:        now,
		tokens:     float64(config.Burst),
		lastRefill: t,
		lastTaken:  t,
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN takes n tokens if available.
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		rl.lastTaken = rl.lastRefill
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.Lock()
	rl.refill()
	rl.tokens--
	rl.lastTaken = rl.lastRefill
	deficit := -rl.tokens
	rl.mu.Unlock()
	if deficit <= 0 {
		return nil
	}

	timer := time.NewTimer(time.Duration(deficit / rl.config.Rate * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		rl.mu.Lock()
		rl.tokens++
		rl.mu.Unlock()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Tokens returns the tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill()
	return rl.tokens
}

func (rl *RateLimiter) refill() {
	now := rl.now()
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.config.Rate
	rl.lastRefill = now
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}

// idleFor reports whether no token has been taken for at least d.
func (rl *RateLimiter) idleFor(d time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.now().Sub(rl.lastTaken) >= d
}

// Limiters keeps one RateLimiter per key, e.g. per client address.
// Buckets unused for idleTTL are dropped by the next sweep.
type Limiters struct {
	config  RateLimiterConfig
	idleTTL time.Duration
	now     func() time.Time

	mu        sync.Mutex
	limiters  map[string]*RateLimiter
	lastSweep time.Time
}

// DefaultIdleTTL is how long an unused bucket is kept.
const DefaultIdleTTL = 10 * time.Minute

// NewLimiters creates a keyed limiter set.
func NewLimiters(config RateLimiterConfig, idleTTL time.Duration) *Limiters {
	return newLimiters(config, idleTTL, time.Now)
}

func newLimiters(config RateLimiterConfig, idleTTL time.Duration, now func() time.Time) *Limiters {
	config.applyDefaults()
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Limiters{
		config:    config,
		idleTTL:   idleTTL,
		now:       now,
		limiters:  make(map[string]*RateLimiter),
		lastSweep: now(),
	}
}

// Allow takes one token from key's bucket.
func (l *Limiters) Allow(key string) bool {
	return l.For(key).Allow()
}

// For returns key's bucket, creating it if needed.
func (l *Limiters) For(key string) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now := l.now(); now.Sub(l.lastSweep) >= l.idleTTL {
		l.lastSweep = now
		for k, rl := range l.limiters {
			if rl.idleFor(l.idleTTL) {
				delete(l.limiters, k)
			}
		}
	}

	rl, ok := l.limiters[key]
	if !ok {
		rl = newRateLimiter(l.config, l.now)
		l.limiters[key] = rl
	}
	return rl
}

// Len returns the number of tracked keys.
func (l *Limiters) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
