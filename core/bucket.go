package core

import (
	"github.com/yourusername/ratelimiter/clock"
)

// TokenBucket implements the token bucket algorithm with lazy refill for a
// single owner. It performs no synchronization: callers sharing one bucket
// across goroutines must lock around it or use AtomicTokenBucket instead.
//
// The bucket does not store the burst size or rate. Every call passes them,
// and each call is authoritative for its own parameters.
//
// The zero value is usable: it counts in seconds, reads the system clock and
// starts uninitialized, so its first refill jumps straight to the call time.
type TokenBucket struct {
	conversion int64 // milliseconds per rate unit
	consumed   int64 // tokens in use out of the burst allowance
	lastRefill int64 // millis accounting has been reconciled up to, 0 = never
	clock      clock.Clock
}

// NewTokenBucket creates a bucket whose refill clock starts now.
func NewTokenBucket(opts Options) *TokenBucket {
	clk := clock.Or(opts.Clock)
	return &TokenBucket{
		conversion: opts.conversionFactor(),
		lastRefill: clk.NowMillis(),
		clock:      clk,
	}
}

// Acquire tries to take one token at the current clock time.
func (b *TokenBucket) Acquire(burst, rate int64) bool {
	return b.AcquireAt(burst, rate, clock.Or(b.clock).NowMillis())
}

// AcquireAt tries to take one token at nowMillis. A non-positive burst or
// rate disables limiting: the call succeeds and leaves the bucket untouched.
func (b *TokenBucket) AcquireAt(burst, rate, nowMillis int64) bool {
	if burst <= 0 || rate <= 0 {
		return true
	}
	b.refill(burst, rate, nowMillis)
	return b.consume(burst)
}

func (b *TokenBucket) refill(burst, rate, now int64) {
	conversion := b.ConversionFactor()
	tokens := tokensSince(b.lastRefill, now, rate, conversion)
	if tokens <= 0 {
		return
	}
	b.lastRefill = advanceRefill(b.lastRefill, now, tokens, rate, conversion)
	b.consumed = drain(b.consumed, burst, tokens)
}

func (b *TokenBucket) consume(burst int64) bool {
	if b.consumed >= burst {
		return false
	}
	b.consumed++
	return true
}

// Reset empties the bucket and marks its refill clock uninitialized.
func (b *TokenBucket) Reset() {
	b.consumed = 0
	b.lastRefill = neverRefilled
}

// Consumed returns the number of tokens currently in use.
func (b *TokenBucket) Consumed() int64 {
	return b.consumed
}

// LastRefill returns the time, in milliseconds, accounting has been reconciled up to.
func (b *TokenBucket) LastRefill() int64 {
	return b.lastRefill
}

// ConversionFactor returns the milliseconds per rate unit.
func (b *TokenBucket) ConversionFactor() int64 {
	if b.conversion <= 0 {
		return MillisPerSecond
	}
	return b.conversion
}

// Remaining returns the tokens left for burst without refilling.
func (b *TokenBucket) Remaining(burst int64) int64 {
	return max(0, burst-min(b.consumed, burst))
}

// RetryAfterAt returns the milliseconds after nowMillis until an acquire
// with the same parameters could succeed. It does not modify the bucket.
func (b *TokenBucket) RetryAfterAt(burst, rate, nowMillis int64) int64 {
	if burst <= 0 || rate <= 0 {
		return 0
	}
	conversion := b.ConversionFactor()
	if tokensSince(b.lastRefill, nowMillis, rate, conversion) > 0 || b.consumed < burst {
		return 0
	}
	return retryAfter(b.lastRefill, nowMillis, rate, conversion)
}
