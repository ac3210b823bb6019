package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yourusername/ratelimiter/clock"
)

const (
	// MillisPerSecond is the conversion factor for a per-second rate.
	MillisPerSecond int64 = 1000

	// MillisPerMinute is the conversion factor for a per-minute rate.
	MillisPerMinute int64 = 60 * MillisPerSecond

	// neverRefilled marks a bucket whose refill clock has not started.
	neverRefilled int64 = 0
)

// ErrUnknownRateUnit is returned when a rate unit name is not recognised.
var ErrUnknownRateUnit = errors.New("unknown rate unit")

// RateUnit is the time unit a rate limit is expressed in.
type RateUnit int

const (
	Seconds RateUnit = iota
	Minutes
)

// ConversionFactor returns the number of milliseconds in one unit.
func (u RateUnit) ConversionFactor() int64 {
	switch u {
	case Minutes:
		return MillisPerMinute
	default:
		return MillisPerSecond
	}
}

func (u RateUnit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Minutes:
		return "minutes"
	default:
		return fmt.Sprintf("RateUnit(%d)", int(u))
	}
}

// ParseRateUnit accepts "s", "sec", "second(s)", "m", "min", "minute(s)".
// The empty string means seconds.
func ParseRateUnit(s string) (RateUnit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "s", "sec", "second", "seconds":
		return Seconds, nil
	case "m", "min", "minute", "minutes":
		return Minutes, nil
	default:
		return Seconds, fmt.Errorf("%w: %q", ErrUnknownRateUnit, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (u RateUnit) MarshalText() ([]byte, error) {
	switch u {
	case Seconds, Minutes:
		return []byte(u.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownRateUnit, int(u))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *RateUnit) UnmarshalText(text []byte) error {
	parsed, err := ParseRateUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Options configures a bucket at construction time.
type Options struct {
	// Unit selects the conversion factor when ConversionMillis is not positive.
	Unit RateUnit

	// ConversionMillis is an explicit milliseconds-per-unit factor.
	ConversionMillis int64

	// Clock is used by Acquire. Defaults to the system clock.
	Clock clock.Clock
}

func (o Options) conversionFactor() int64 {
	if o.ConversionMillis > 0 {
		return o.ConversionMillis
	}
	return o.Unit.ConversionFactor()
}
