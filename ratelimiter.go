// Package ratelimiter is the entry point of the module: it re-exports the
// keyed limiter from pkg/ratelimiter and the buckets from core.
package ratelimiter

import (
	"github.com/yourusername/ratelimiter/core"
	"github.com/yourusername/ratelimiter/pkg/ratelimiter"
)

// Re-export main types for convenience
type (
	RateLimiter       = ratelimiter.RateLimiter
	Config            = ratelimiter.Config
	LimitConfig       = ratelimiter.LimitConfig
	Decision          = ratelimiter.Decision
	Option            = ratelimiter.Option
	Limiter           = ratelimiter.Limiter
	SharedLimiter     = ratelimiter.SharedLimiter
	TokenBucket       = core.TokenBucket
	AtomicTokenBucket = core.AtomicTokenBucket
	RateUnit          = core.RateUnit
	BucketOptions     = core.Options
)

// Rate units.
const (
	Seconds = core.Seconds
	Minutes = core.Minutes
)

var (
	// NewRateLimiter creates a keyed rate limiter.
	NewRateLimiter = ratelimiter.NewRateLimiter

	// NewLimiter creates a single-goroutine limiter.
	NewLimiter = ratelimiter.NewLimiter

	// NewSharedLimiter creates a limiter whose copies share one bucket.
	NewSharedLimiter = ratelimiter.NewSharedLimiter

	// NewTokenBucket creates an exclusive bucket.
	NewTokenBucket = core.NewTokenBucket

	// NewAtomicTokenBucket creates a lock-free bucket.
	NewAtomicTokenBucket = core.NewAtomicTokenBucket
)
