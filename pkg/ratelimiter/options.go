package ratelimiter

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yourusername/ratelimiter/clock"
	"github.com/yourusername/ratelimiter/core"
)

// Option is a functional option for configuring a RateLimiter.
type Option func(*rateLimiter) error

// WithStore sets a custom store for the rate limiter.
// If not provided, an InMemoryStore is created from the cleanup age.
func WithStore(store Store) Option {
	return func(rl *rateLimiter) error {
		if store == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		rl.store = store
		return nil
	}
}

// WithConfig sets the configuration for the rate limiter.
func WithConfig(config *Config) Option {
	return func(rl *rateLimiter) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(rl *rateLimiter) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		rl.config = config
		return nil
	}
}

// WithKeyExtractor sets a custom key extractor function. It takes precedence
// over the key_extractor setting of any configuration, including reloads.
func WithKeyExtractor(extractor KeyExtractor) Option {
	return func(rl *rateLimiter) error {
		if extractor == nil {
			return fmt.Errorf("%w: key extractor cannot be nil", ErrInvalidConfig)
		}
		rl.keyExtractor = extractor
		rl.customExtractor = true
		return nil
	}
}

// WithDefaults sets the default limit to burst tokens and rate tokens per second.
// A rate of 0 disables limiting.
func WithDefaults(burst, rate int64) Option {
	return func(rl *rateLimiter) error {
		limit := LimitConfig{BurstSize: burst, RateLimit: rate, RateUnit: core.Seconds}
		if err := limit.Validate(); err != nil {
			return err
		}
		config := NewConfig()
		config.Defaults = limit
		rl.config = config
		return nil
	}
}

// WithCleanupAge sets the age after which idle buckets are cleaned up.
// It overrides the cleanup_age setting of the configuration.
func WithCleanupAge(age time.Duration) Option {
	return func(rl *rateLimiter) error {
		if age < 0 {
			return fmt.Errorf("%w: cleanup age cannot be negative", ErrInvalidConfig)
		}
		rl.cleanupAge = &age
		return nil
	}
}

// WithCleanupInterval sets how often StartBackgroundCleanup sweeps the store.
// Default: 10 minutes
func WithCleanupInterval(interval time.Duration) Option {
	return func(rl *rateLimiter) error {
		if interval < 0 {
			return fmt.Errorf("%w: cleanup interval cannot be negative", ErrInvalidConfig)
		}
		rl.cleanupInterval = interval
		return nil
	}
}

// RouteExtractorFunc maps a request path to the route its policy is looked up by.
type RouteExtractorFunc func(path string) string

// WithRouteExtractor sets a function to extract the route from a request path.
// By default, r.URL.Path is used.
func WithRouteExtractor(fn RouteExtractorFunc) Option {
	return func(rl *rateLimiter) error {
		if fn == nil {
			return fmt.Errorf("%w: route extractor cannot be nil", ErrInvalidConfig)
		}
		rl.routeExtractor = fn
		return nil
	}
}

// WithClock sets the time source of the default store and retry calculations.
func WithClock(clk clock.Clock) Option {
	return func(rl *rateLimiter) error {
		if clk == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		rl.clock = clk
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rl *rateLimiter) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		rl.logger = logger
		return nil
	}
}

// WithRecorder sets where decisions are reported.
func WithRecorder(recorder Recorder) Option {
	return func(rl *rateLimiter) error {
		if recorder == nil {
			return fmt.Errorf("%w: recorder cannot be nil", ErrInvalidConfig)
		}
		rl.recorder = recorder
		return nil
	}
}
