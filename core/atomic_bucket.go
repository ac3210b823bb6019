package core

import (
	"sync/atomic"

	"github.com/yourusername/ratelimiter/clock"
)

// AtomicTokenBucket is the lock-free counterpart of TokenBucket. Any number
// of goroutines may call Acquire on one bucket concurrently.
//
// The two counters are reconciled independently, each with its own
// compare-and-swap loop. Only the goroutine that wins the swap of the refill
// clock credits the refilled tokens, so a time window is never credited twice.
type AtomicTokenBucket struct {
	conversion int64
	consumed   atomic.Int64
	lastRefill atomic.Int64
	clock      clock.Clock
}

// NewAtomicTokenBucket creates a shared bucket whose refill clock starts now.
func NewAtomicTokenBucket(opts Options) *AtomicTokenBucket {
	clk := clock.Or(opts.Clock)
	b := &AtomicTokenBucket{
		conversion: opts.conversionFactor(),
		clock:      clk,
	}
	b.lastRefill.Store(clk.NowMillis())
	return b
}

// Acquire tries to take one token at the current clock time.
func (b *AtomicTokenBucket) Acquire(burst, rate int64) bool {
	return b.AcquireAt(burst, rate, clock.Or(b.clock).NowMillis())
}

// AcquireAt tries to take one token at nowMillis. A non-positive burst or
// rate disables limiting: the call succeeds and leaves the bucket untouched.
func (b *AtomicTokenBucket) AcquireAt(burst, rate, nowMillis int64) bool {
	if burst <= 0 || rate <= 0 {
		return true
	}
	b.refill(burst, rate, nowMillis)
	return b.consume(burst)
}

func (b *AtomicTokenBucket) refill(burst, rate, now int64) {
	conversion := b.ConversionFactor()
	observed := b.lastRefill.Load()
	tokens := tokensSince(observed, now, rate, conversion)
	if tokens <= 0 {
		return
	}
	next := advanceRefill(observed, now, tokens, rate, conversion)
	if !b.lastRefill.CompareAndSwap(observed, next) {
		// Another caller already advanced the clock over this window.
		return
	}
	for {
		current := b.consumed.Load()
		if b.consumed.CompareAndSwap(current, drain(current, burst, tokens)) {
			return
		}
	}
}

func (b *AtomicTokenBucket) consume(burst int64) bool {
	for {
		current := b.consumed.Load()
		if current >= burst {
			return false
		}
		if b.consumed.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Reset empties the bucket and marks its refill clock uninitialized.
// The two counters are stored one after the other, not as one transaction.
func (b *AtomicTokenBucket) Reset() {
	b.consumed.Store(0)
	b.lastRefill.Store(neverRefilled)
}

// Consumed returns the number of tokens currently in use.
func (b *AtomicTokenBucket) Consumed() int64 {
	return b.consumed.Load()
}

// LastRefill returns the time, in milliseconds, accounting has been reconciled up to.
func (b *AtomicTokenBucket) LastRefill() int64 {
	return b.lastRefill.Load()
}

// ConversionFactor returns the milliseconds per rate unit.
func (b *AtomicTokenBucket) ConversionFactor() int64 {
	if b.conversion <= 0 {
		return MillisPerSecond
	}
	return b.conversion
}

// Remaining returns the tokens left for burst without refilling.
func (b *AtomicTokenBucket) Remaining(burst int64) int64 {
	return max(0, burst-min(b.consumed.Load(), burst))
}

// RetryAfterAt returns the milliseconds after nowMillis until an acquire
// with the same parameters could succeed. It does not modify the bucket.
func (b *AtomicTokenBucket) RetryAfterAt(burst, rate, nowMillis int64) int64 {
	if burst <= 0 || rate <= 0 {
		return 0
	}
	conversion := b.ConversionFactor()
	last := b.lastRefill.Load()
	if tokensSince(last, nowMillis, rate, conversion) > 0 || b.consumed.Load() < burst {
		return 0
	}
	return retryAfter(last, nowMillis, rate, conversion)
}
