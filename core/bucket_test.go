package core

import (
	"math"
	"testing"

	"github.com/yourusername/ratelimiter/clock"
)

// bucket is the method set shared by TokenBucket and AtomicTokenBucket.
type bucket interface {
	AcquireAt(burst, rate, nowMillis int64) bool
	Reset()
	Consumed() int64
	LastRefill() int64
	Remaining(burst int64) int64
	RetryAfterAt(burst, rate, nowMillis int64) int64
}

const start = int64(1_700_000_000_000)

var variants = []struct {
	name string
	new  func(opts Options) bucket
}{
	{"exclusive", func(opts Options) bucket { return NewTokenBucket(opts) }},
	{"atomic", func(opts Options) bucket { return NewAtomicTokenBucket(opts) }},
}

func newAt(t *testing.T, mk func(Options) bucket, now int64) bucket {
	t.Helper()
	return mk(Options{Clock: clock.NewManual(now)})
}

func drainAll(t *testing.T, b bucket, burst, rate, now int64) {
	t.Helper()
	for i := int64(0); i < burst; i++ {
		if !b.AcquireAt(burst, rate, now) {
			t.Fatalf("request %d should be allowed (burst)", i+1)
		}
	}
	if b.AcquireAt(burst, rate, now) {
		t.Fatalf("request %d should be denied (bucket exhausted)", burst+1)
	}
}

func TestTokenBucket_AllowsBurstRequests(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 10, 10, start)

			if got := b.Consumed(); got != 10 {
				t.Errorf("Consumed() = %d, want 10", got)
			}
			if got := b.LastRefill(); got != start {
				t.Errorf("LastRefill() = %d, want %d", got, start)
			}
		})
	}
}

func TestTokenBucket_DisabledLimiting(t *testing.T) {
	tests := []struct {
		name  string
		burst int64
		rate  int64
	}{
		{"zero burst", 0, 10},
		{"negative burst", -3, 10},
		{"zero rate", 10, 0},
		{"negative rate", 10, -1},
		{"both non-positive", 0, 0},
	}

	for _, v := range variants {
		for _, tt := range tests {
			t.Run(v.name+"/"+tt.name, func(t *testing.T) {
				b := newAt(t, v.new, start)
				for i := 0; i < 100; i++ {
					if !b.AcquireAt(tt.burst, tt.rate, start+int64(i)*1000) {
						t.Fatalf("call %d should pass through when limiting is disabled", i+1)
					}
				}
				if got := b.Consumed(); got != 0 {
					t.Errorf("Consumed() = %d, want 0", got)
				}
				if got := b.LastRefill(); got != start {
					t.Errorf("LastRefill() = %d, want %d", got, start)
				}

				// Re-enabling must see the full burst.
				drainAll(t, b, 3, 1, start)
			})
		}
	}
}

func TestTokenBucket_RefillsOneInterval(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 10, 10, start)

			// 10 tokens per second = 1 token per 100ms.
			now := start + 100
			if !b.AcquireAt(10, 10, now) {
				t.Fatal("request should be allowed after one refill interval")
			}
			if b.AcquireAt(10, 10, now) {
				t.Error("request should be denied (only one token refilled)")
			}
			if got := b.LastRefill(); got != now {
				t.Errorf("LastRefill() = %d, want %d", got, now)
			}
		})
	}
}

func TestTokenBucket_RefillsFullSecond(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 10, 10, start)

			// One second refills all ten tokens.
			drainAll(t, b, 10, 10, start+1000)
		})
	}
}

func TestTokenBucket_CapsAtBurst(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 5, 10, start)

			// An hour would refill 36000 tokens; only the burst is usable.
			drainAll(t, b, 5, 10, start+3_600_000)
		})
	}
}

func TestTokenBucket_TooLittleTimeNoRefill(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 2, 10, start)

			if b.AcquireAt(2, 10, start+99) {
				t.Error("99ms is less than one 100ms interval; request should be denied")
			}
			if got := b.LastRefill(); got != start {
				t.Errorf("LastRefill() = %d, want %d (unchanged)", got, start)
			}
		})
	}
}

func TestTokenBucket_KeepsFractionalRemainder(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 3, 3, start)

			// 3 per second: 500ms grants one token worth 333ms.
			if !b.AcquireAt(3, 3, start+500) {
				t.Fatal("request at +500ms should be allowed")
			}
			if got := b.LastRefill(); got != start+333 {
				t.Errorf("LastRefill() = %d, want %d", got, start+333)
			}

			// The 167ms left over counts toward the next token.
			if !b.AcquireAt(3, 3, start+700) {
				t.Fatal("request at +700ms should be allowed thanks to the carried remainder")
			}
			if got := b.LastRefill(); got != start+666 {
				t.Errorf("LastRefill() = %d, want %d", got, start+666)
			}
		})
	}
}

func TestTokenBucket_ShrinkingBurst(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 10, 10, start)

			if b.AcquireAt(4, 10, start) {
				t.Error("request should be denied: 10 consumed exceeds burst 4")
			}

			// One token refilled against the clamped level of 4.
			if !b.AcquireAt(4, 10, start+100) {
				t.Fatal("request should be allowed after refill")
			}
			if got := b.Consumed(); got != 4 {
				t.Errorf("Consumed() = %d, want 4", got)
			}
			if b.AcquireAt(4, 10, start+100) {
				t.Error("request should be denied after using the refilled token")
			}
		})
	}
}

func TestTokenBucket_ClockGoesBackwards(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			if !b.AcquireAt(2, 1, start-5000) {
				t.Fatal("request should be allowed from the initial burst")
			}
			if got := b.LastRefill(); got != start {
				t.Errorf("LastRefill() = %d, want %d", got, start)
			}
			if got := b.Consumed(); got != 1 {
				t.Errorf("Consumed() = %d, want 1", got)
			}
		})
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			drainAll(t, b, 10, 10, start)

			b.Reset()
			if got := b.Consumed(); got != 0 {
				t.Errorf("Consumed() after Reset = %d, want 0", got)
			}
			if got := b.LastRefill(); got != 0 {
				t.Errorf("LastRefill() after Reset = %d, want 0", got)
			}

			// Behaves like a fresh bucket, and the bootstrap does not
			// credit the whole epoch beyond the burst.
			drainAll(t, b, 10, 10, start)
			if got := b.LastRefill(); got != start {
				t.Errorf("LastRefill() = %d, want %d", got, start)
			}
		})
	}
}

func TestTokenBucket_ZeroValue(t *testing.T) {
	var b TokenBucket

	if got := b.ConversionFactor(); got != MillisPerSecond {
		t.Errorf("ConversionFactor() = %d, want %d", got, MillisPerSecond)
	}

	// At t=0 nothing has elapsed, so the initial burst is used as is.
	drainAll(t, &b, 10, 10, 0)

	if !b.AcquireAt(10, 10, 100) {
		t.Fatal("request at t=100 should be allowed")
	}
	if got := b.LastRefill(); got != 100 {
		t.Errorf("LastRefill() = %d, want 100", got)
	}
	if b.AcquireAt(10, 10, 100) {
		t.Error("request at t=100 should be denied after one refill")
	}
}

func TestTokenBucket_ZeroValueBootstrap(t *testing.T) {
	var b AtomicTokenBucket

	if !b.AcquireAt(5, 1, start) {
		t.Fatal("first request should be allowed")
	}
	if got := b.LastRefill(); got != start {
		t.Errorf("LastRefill() = %d, want %d", got, start)
	}
	if got := b.Remaining(5); got != 4 {
		t.Errorf("Remaining(5) = %d, want 4", got)
	}
}

func TestTokenBucket_MinuteUnit(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := v.new(Options{Unit: Minutes, Clock: clock.NewManual(start)})
			drainAll(t, b, 2, 6, start)

			// 6 per minute = 1 token per 10s.
			if b.AcquireAt(2, 6, start+9_999) {
				t.Error("request should be denied before 10s")
			}
			if !b.AcquireAt(2, 6, start+10_000) {
				t.Error("request should be allowed at 10s")
			}
		})
	}
}

func TestTokenBucket_ExplicitConversion(t *testing.T) {
	b := NewTokenBucket(Options{Unit: Minutes, ConversionMillis: 250})
	if got := b.ConversionFactor(); got != 250 {
		t.Errorf("ConversionFactor() = %d, want 250", got)
	}

	b = NewTokenBucket(Options{Unit: Minutes, ConversionMillis: -1})
	if got := b.ConversionFactor(); got != MillisPerMinute {
		t.Errorf("ConversionFactor() = %d, want %d", got, MillisPerMinute)
	}
}

func TestTokenBucket_HugeRateDoesNotOverflow(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			b.Reset()

			if !b.AcquireAt(1, math.MaxInt64, start) {
				t.Fatal("request should be allowed")
			}
			if got := b.LastRefill(); got != start {
				t.Errorf("LastRefill() = %d, want %d", got, start)
			}
			if !b.AcquireAt(1, math.MaxInt64, start+1) {
				t.Error("request should be allowed: one millisecond refills the burst")
			}
			if got := b.Consumed(); got < 0 || got > 1 {
				t.Errorf("Consumed() = %d, want within [0, 1]", got)
			}
		})
	}
}

func TestTokenBucket_RetryAfterAt(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)

			if got := b.RetryAfterAt(3, 3, start); got != 0 {
				t.Errorf("RetryAfterAt() on full bucket = %d, want 0", got)
			}

			drainAll(t, b, 3, 3, start)

			// ceil(1000/3) = 334ms until the next whole token.
			if got := b.RetryAfterAt(3, 3, start); got != 334 {
				t.Errorf("RetryAfterAt() = %d, want 334", got)
			}
			if got := b.RetryAfterAt(3, 3, start+300); got != 34 {
				t.Errorf("RetryAfterAt(+300) = %d, want 34", got)
			}
			if got := b.RetryAfterAt(3, 3, start+334); got != 0 {
				t.Errorf("RetryAfterAt(+334) = %d, want 0", got)
			}
			if got := b.RetryAfterAt(0, 3, start); got != 0 {
				t.Errorf("RetryAfterAt() with limiting disabled = %d, want 0", got)
			}

			// RetryAfterAt is read-only.
			if got := b.Consumed(); got != 3 {
				t.Errorf("Consumed() = %d, want 3", got)
			}
			if b.AcquireAt(3, 3, start+333) {
				t.Error("request at +333ms should still be denied")
			}
			if !b.AcquireAt(3, 3, start+334) {
				t.Error("request at +334ms should be allowed")
			}
		})
	}
}

func TestTokenBucket_Remaining(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			b := newAt(t, v.new, start)
			if got := b.Remaining(5); got != 5 {
				t.Errorf("Remaining(5) = %d, want 5", got)
			}
			b.AcquireAt(5, 1, start)
			b.AcquireAt(5, 1, start)
			if got := b.Remaining(5); got != 3 {
				t.Errorf("Remaining(5) = %d, want 3", got)
			}
			if got := b.Remaining(1); got != 0 {
				t.Errorf("Remaining(1) = %d, want 0", got)
			}
		})
	}
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		a, b, c int64
		want    int64
	}{
		{10, 3, 4, 7},
		{0, 5, 7, 0},
		{999, 3, 1000, 2},
		{math.MaxInt64, 1000, 1000, math.MaxInt64},
		{math.MaxInt64, math.MaxInt64, 1, math.MaxInt64},
		{math.MaxInt64, 2, 3, math.MaxInt64 / 3 * 2},
	}

	for _, tt := range tests {
		if got := mulDiv(tt.a, tt.b, tt.c); got != tt.want {
			t.Errorf("mulDiv(%d, %d, %d) = %d, want %d", tt.a, tt.b, tt.c, got, tt.want)
		}
	}
}

func TestParseRateUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    RateUnit
		wantErr bool
	}{
		{"", Seconds, false},
		{"seconds", Seconds, false},
		{" Sec ", Seconds, false},
		{"m", Minutes, false},
		{"MINUTES", Minutes, false},
		{"hours", Seconds, true},
	}

	for _, tt := range tests {
		got, err := ParseRateUnit(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRateUnit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseRateUnit(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	var u RateUnit
	if err := u.UnmarshalText([]byte("minutes")); err != nil || u != Minutes {
		t.Errorf("UnmarshalText(minutes) = %v, %v", u, err)
	}
	if text, err := Minutes.MarshalText(); err != nil || string(text) != "minutes" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}
	if _, err := RateUnit(9).MarshalText(); err == nil {
		t.Error("MarshalText() of unknown unit should fail")
	}
}
