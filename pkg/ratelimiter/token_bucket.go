package ratelimiter

import (
	"time"

	"github.com/yourusername/ratelimiter/clock"
	"github.com/yourusername/ratelimiter/core"
)

// Limiter guards a single call site with a fixed limit.
// It is not safe for concurrent use; share a SharedLimiter instead.
//
// Example: NewLimiter(LimitConfig{BurstSize: 5, RateLimit: 10}, nil) allows
// bursts of 5 calls and 10 calls per second on average.
type Limiter struct {
	bucket *core.TokenBucket
	config LimitConfig
}

// NewLimiter creates a Limiter. A nil clock reads the system clock.
func NewLimiter(config LimitConfig, clk clock.Clock) *Limiter {
	opts := config.bucketOptions()
	opts.Clock = clk
	return &Limiter{
		bucket: core.NewTokenBucket(opts),
		config: config,
	}
}

// Allow reports whether one more call may proceed now.
func (l *Limiter) Allow() bool {
	return l.bucket.Acquire(l.config.Burst(), l.config.RateLimit)
}

// Reset restores the full burst.
func (l *Limiter) Reset() {
	l.bucket.Reset()
}

// Config returns the limit this Limiter enforces.
func (l *Limiter) Config() LimitConfig {
	return l.config
}

// SharedLimiter is a value that may be copied freely: every copy draws from
// the same lock-free bucket, so it can be handed to many goroutines.
type SharedLimiter struct {
	bucket *core.AtomicTokenBucket
	config LimitConfig
	clock  clock.Clock
}

// NewSharedLimiter creates a SharedLimiter. A nil clock reads the system clock.
func NewSharedLimiter(config LimitConfig, clk clock.Clock) SharedLimiter {
	opts := config.bucketOptions()
	opts.Clock = clk
	return SharedLimiter{
		bucket: core.NewAtomicTokenBucket(opts),
		config: config,
		clock:  clock.Or(clk),
	}
}

// Allow reports whether one more call may proceed now.
func (l SharedLimiter) Allow() bool {
	return l.bucket.Acquire(l.config.Burst(), l.config.RateLimit)
}

// Remaining returns the tokens left in the shared bucket.
func (l SharedLimiter) Remaining() int64 {
	return l.bucket.Remaining(l.config.Burst())
}

// RetryAfter returns how long until Allow could succeed again.
func (l SharedLimiter) RetryAfter() time.Duration {
	if l.config.Unlimited() {
		return 0
	}
	wait := l.bucket.RetryAfterAt(l.config.Burst(), l.config.RateLimit, l.clock.NowMillis())
	return time.Duration(wait) * time.Millisecond
}

// Reset restores the full burst for every copy.
func (l SharedLimiter) Reset() {
	l.bucket.Reset()
}

// Config returns the limit this copy enforces.
func (l SharedLimiter) Config() LimitConfig {
	return l.config
}

// WithLimit returns a copy drawing from the same bucket with a different
// burst size and rate. The unit of the bucket cannot change.
func (l SharedLimiter) WithLimit(config LimitConfig) SharedLimiter {
	config.RateUnit = l.config.RateUnit
	config.ConversionMillis = l.config.ConversionMillis
	return SharedLimiter{bucket: l.bucket, config: config, clock: l.clock}
}
