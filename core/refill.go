package core

import (
	"math"
	"math/bits"
)

// tokensSince returns floor((now-last) * rate / conversion).
// Non-positive elapsed time yields no tokens.
func tokensSince(last, now, rate, conversion int64) int64 {
	elapsed := now - last
	if elapsed <= 0 {
		return 0
	}
	return mulDiv(elapsed, rate, conversion)
}

// advanceRefill returns the refill clock after granting tokens.
// The first grant on an uninitialized bucket jumps straight to now;
// afterwards the clock only moves by the time the whole tokens account for,
// so the fractional remainder carries into the next call.
func advanceRefill(last, now, tokens, rate, conversion int64) int64 {
	if last == neverRefilled {
		return now
	}
	step := mulDiv(tokens, conversion, rate)
	if step > now-last {
		return now
	}
	return last + step
}

// drain applies a refill of tokens to consumed, clamping to the current burst first.
func drain(consumed, burst, tokens int64) int64 {
	adjusted := min(consumed, burst)
	return max(0, adjusted-tokens)
}

// retryAfter returns how many milliseconds must pass after last before a
// single token is granted.
func retryAfter(last, now, rate, conversion int64) int64 {
	interval := mulDiv(conversion, 1, rate)
	if interval*rate < conversion {
		interval++
	}
	return max(0, last+interval-now)
}

// mulDiv computes a*b/c with a 128-bit intermediate, truncating toward zero
// and saturating at math.MaxInt64. a and b must be non-negative, c positive.
func mulDiv(a, b, c int64) int64 {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(c) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}
