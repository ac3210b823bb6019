package ratelimiter

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourusername/ratelimiter/core"
)

// LimitConfig is the burst size, rate and unit of one limit.
//
// A RateLimit of zero means unlimited: every call is admitted and the
// bucket is left untouched. BurstSize is raised to at least 1 when used.
type LimitConfig struct {
	// BurstSize is the number of tokens that may be taken back to back
	BurstSize int64 `yaml:"burst_size" json:"burst_size"`

	// RateLimit is the number of tokens refilled per RateUnit
	RateLimit int64 `yaml:"rate_limit" json:"rate_limit"`

	// RateUnit is seconds or minutes
	RateUnit core.RateUnit `yaml:"rate_unit" json:"rate_unit"`

	// ConversionMillis overrides RateUnit with an arbitrary unit length
	ConversionMillis int64 `yaml:"conversion_ms,omitempty" json:"conversion_ms,omitempty"`
}

// NewLimitConfig returns a limit of rateLimit tokens per second with a burst of 1.
func NewLimitConfig(rateLimit int64) LimitConfig {
	return LimitConfig{
		BurstSize: 1,
		RateLimit: rateLimit,
		RateUnit:  core.Seconds,
	}
}

// Validate checks if a LimitConfig is usable.
func (c LimitConfig) Validate() error {
	if c.RateLimit < 0 {
		return ErrNegativeRateLimit
	}
	if c.ConversionMillis < 0 {
		return ErrNegativeConversion
	}
	if _, err := c.RateUnit.MarshalText(); err != nil {
		return err
	}
	return nil
}

// Unlimited reports whether the limit admits every call.
func (c LimitConfig) Unlimited() bool {
	return c.RateLimit <= 0
}

// ConversionFactor returns the milliseconds in one rate unit.
func (c LimitConfig) ConversionFactor() int64 {
	if c.ConversionMillis > 0 {
		return c.ConversionMillis
	}
	return c.RateUnit.ConversionFactor()
}

// Burst returns the burst size, at least 1.
func (c LimitConfig) Burst() int64 {
	return max(1, c.BurstSize)
}

func (c LimitConfig) bucketOptions() core.Options {
	return core.Options{Unit: c.RateUnit, ConversionMillis: c.ConversionMillis}
}

// Config holds the keyed limiter configuration: a default limit plus
// per-route overrides.
type Config struct {
	// Defaults are applied to all routes unless overridden
	Defaults LimitConfig `yaml:"defaults"`

	// Policies maps route paths to their own limits.
	// Each client gets a separate bucket per overridden route.
	Policies map[string]LimitConfig `yaml:"policies,omitempty"`

	// KeyExtractor specifies how to identify clients
	// Examples: "ip", "header:X-API-Key", "bearer"
	KeyExtractor string `yaml:"key_extractor,omitempty"`

	// CleanupAge specifies how long idle buckets are kept
	// Format: "1h", "30m", "0" to disable
	CleanupAge string `yaml:"cleanup_age,omitempty"`
}

// NewConfig creates a Config allowing 10 requests per second with bursts of 100.
func NewConfig() *Config {
	return &Config{
		Defaults: LimitConfig{
			BurstSize: 100,
			RateLimit: 10,
			RateUnit:  core.Seconds,
		},
		Policies:     make(map[string]LimitConfig),
		KeyExtractor: "ip",
		CleanupAge:   "1h",
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML configuration. Settings missing
// from data keep the values of NewConfig.
func ParseConfig(data []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if config.KeyExtractor == "" {
		config.KeyExtractor = "ip"
	}
	if config.CleanupAge == "" {
		config.CleanupAge = "1h"
	}
	if config.Policies == nil {
		config.Policies = make(map[string]LimitConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("%w: invalid defaults: %w", ErrInvalidConfig, err)
	}
	for route, policy := range c.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: invalid policy for route %s: %w", ErrInvalidConfig, route, err)
		}
	}
	if _, err := c.CleanupDuration(); err != nil {
		return err
	}
	return nil
}

// CleanupDuration parses CleanupAge. "0" and "" disable cleanup.
func (c *Config) CleanupDuration() (time.Duration, error) {
	if c.CleanupAge == "" || c.CleanupAge == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CleanupAge)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid cleanup_age %q: %v", ErrInvalidConfig, c.CleanupAge, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: cleanup_age cannot be negative", ErrInvalidConfig)
	}
	return d, nil
}

// PolicyFor returns the limit for route and whether the route has its own policy.
func (c *Config) PolicyFor(route string) (LimitConfig, bool) {
	if policy, exists := c.Policies[route]; exists {
		return policy, true
	}
	return c.Defaults, false
}

// GetPolicy returns the limit for route, falling back to the defaults.
func (c *Config) GetPolicy(route string) LimitConfig {
	policy, _ := c.PolicyFor(route)
	return policy
}

// SetPolicy sets a rate limit policy for a specific route.
func (c *Config) SetPolicy(route string, policy LimitConfig) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Policies == nil {
		c.Policies = make(map[string]LimitConfig)
	}
	c.Policies[route] = policy
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Policies = make(map[string]LimitConfig, len(c.Policies))
	for route, policy := range c.Policies {
		clone.Policies[route] = policy
	}
	return &clone
}
