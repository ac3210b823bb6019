package ratelimiter

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/yourusername/ratelimiter/clock"
)

// RateLimiter limits many clients at once, one bucket per client key.
type RateLimiter interface {
	// Allow checks the key against the default limit.
	Allow(key string) (*Decision, error)

	// AllowWith checks the key against an explicit limit. Buckets do not
	// remember limits, so a key may be checked with different limits over time.
	AllowWith(key string, limit LimitConfig) (*Decision, error)

	// AllowRequest extracts the key and route from r and applies the route's policy.
	AllowRequest(r *http.Request) (*Decision, error)

	// Middleware returns an HTTP middleware that applies rate limiting.
	Middleware(next http.Handler) http.Handler

	// Reset restores the full burst of key, including its per-route buckets.
	Reset(key string)

	// Config returns a copy of the active configuration.
	Config() *Config

	// UpdateConfig swaps in a new configuration. Existing buckets keep their
	// state and are checked against the new limits from the next call on.
	UpdateConfig(config *Config) error

	// StartBackgroundCleanup periodically removes idle buckets.
	// Returns a function to stop it.
	StartBackgroundCleanup() func()
}

// Recorder receives every decision the limiter makes.
type Recorder interface {
	RecordRequest(key, route string, allowed bool)
}

// Decision contains the result of a rate limit check.
type Decision struct {
	// Allowed indicates whether the request should be allowed (true) or denied (false)
	Allowed bool

	// Remaining is the number of tokens left in the bucket
	Remaining int64

	// Limit is the burst size the request was checked against
	Limit int64

	// RetryAfter is how long to wait before the next request would be allowed.
	// This is 0 if Allowed is true
	RetryAfter time.Duration

	// Key is the rate limit key that was used
	Key string

	// Route is the route path that was checked
	Route string
}

type limiterState struct {
	config       *Config
	keyExtractor KeyExtractor
}

type rateLimiter struct {
	store           Store
	state           atomic.Pointer[limiterState]
	routeExtractor  RouteExtractorFunc
	cleanupInterval time.Duration
	clock           clock.Clock
	logger          *slog.Logger
	recorder        Recorder

	// set by options before the state is built
	config          *Config
	keyExtractor    KeyExtractor
	customExtractor bool
	cleanupAge      *time.Duration
}

// NewRateLimiter creates a new RateLimiter with the given options.
// Without options it allows 10 requests per second per client IP with bursts of 100.
//
// Example:
//
//	limiter, err := NewRateLimiter(
//	    WithDefaults(100, 10), // bursts of 100, 10/sec refill
//	    WithKeyExtractor(ExtractIPWithProxy()),
//	)
func NewRateLimiter(opts ...Option) (RateLimiter, error) {
	rl := &rateLimiter{
		config:          NewConfig(),
		routeExtractor:  func(path string) string { return path },
		cleanupInterval: 10 * time.Minute,
		clock:           clock.System{},
		logger:          slog.Default().With("component", "ratelimiter"),
	}

	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	extractor := rl.keyExtractor
	if !rl.customExtractor {
		parsed, err := ParseKeyExtractorConfig(rl.config.KeyExtractor)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key extractor config: %w", err)
		}
		extractor = parsed
	}
	rl.state.Store(&limiterState{config: rl.config.Clone(), keyExtractor: extractor})

	if rl.store == nil {
		age, err := rl.config.CleanupDuration()
		if err != nil {
			return nil, fmt.Errorf("failed to create default store: %w", err)
		}
		if rl.cleanupAge != nil {
			age = *rl.cleanupAge
		}
		rl.store = NewInMemoryStore(age, rl.clock)
	}

	return rl, nil
}

// Allow checks if a request with the given key is allowed under the default limit.
func (rl *rateLimiter) Allow(key string) (*Decision, error) {
	return rl.AllowWith(key, rl.state.Load().config.Defaults)
}

// AllowWith checks if a request with the given key is allowed under limit.
func (rl *rateLimiter) AllowWith(key string, limit LimitConfig) (*Decision, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if err := limit.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	decision, err := rl.check(key, limit)
	if err != nil {
		return nil, err
	}
	decision.Key = key
	rl.record(decision)
	return decision, nil
}

// AllowRequest checks an HTTP request. Routes with their own policy get a
// separate bucket per client; all other routes share the client's default bucket.
func (rl *rateLimiter) AllowRequest(r *http.Request) (*Decision, error) {
	state := rl.state.Load()

	key, err := state.keyExtractor(r)
	if err != nil {
		return nil, fmt.Errorf("key extraction failed: %w", err)
	}
	if key == "" {
		return nil, ErrInvalidKey
	}

	route := rl.routeExtractor(r.URL.Path)
	policy, own := state.config.PolicyFor(route)

	bucketKey := key
	if own {
		bucketKey = routeKey(key, route)
	}

	decision, err := rl.check(bucketKey, policy)
	if err != nil {
		return nil, err
	}
	decision.Key = key
	decision.Route = route
	rl.record(decision)
	return decision, nil
}

func routeKey(key, route string) string {
	return key + "@" + route
}

func (rl *rateLimiter) check(bucketKey string, limit LimitConfig) (*Decision, error) {
	burst := limit.Burst()
	if limit.Unlimited() {
		return &Decision{Allowed: true, Remaining: burst, Limit: burst}, nil
	}

	bucket, err := rl.store.GetBucket(bucketKey, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get bucket: %v", ErrStoreFailed, err)
	}

	now := rl.clock.NowMillis()
	decision := &Decision{
		Allowed: bucket.AcquireAt(burst, limit.RateLimit, now),
		Limit:   burst,
	}
	decision.Remaining = bucket.Remaining(burst)
	if !decision.Allowed {
		wait := bucket.RetryAfterAt(burst, limit.RateLimit, now)
		decision.RetryAfter = time.Duration(wait) * time.Millisecond
	}
	return decision, nil
}

func (rl *rateLimiter) record(d *Decision) {
	if !d.Allowed {
		rl.logger.Debug("request rate limited",
			"key", d.Key,
			"route", d.Route,
			"retry_after_ms", d.RetryAfter.Milliseconds(),
		)
	}
	if rl.recorder != nil {
		rl.recorder.RecordRequest(d.Key, d.Route, d.Allowed)
	}
}

// Middleware returns an HTTP middleware that applies rate limiting.
//
// Headers:
//   - X-RateLimit-Limit: burst size of the applied limit
//   - X-RateLimit-Remaining: tokens left after this request
//   - X-RateLimit-Reset: Unix time the next token arrives (when limited)
//   - Retry-After: seconds to wait before retrying (when limited)
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := rl.AllowRequest(r)
		if err != nil {
			if errors.Is(err, ErrKeyExtractionFailed) || errors.Is(err, ErrInvalidKey) {
				http.Error(w, "Bad Request", http.StatusBadRequest)
				return
			}
			rl.logger.Error("rate limit check failed", "path", r.URL.Path, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))

		if !decision.Allowed {
			reset := time.UnixMilli(rl.clock.NowMillis()).Add(decision.RetryAfter)
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			w.Header().Set("Retry-After", strconv.FormatInt(RetryAfterSeconds(decision.RetryAfter), 10))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RetryAfterSeconds converts a wait into a Retry-After header value. It
// rounds up and never reports less than one second.
func RetryAfterSeconds(d time.Duration) int64 {
	secs := int64((d + time.Second - 1) / time.Second)
	return max(1, secs)
}

// Reset restores the full burst of key and of its per-route buckets.
func (rl *rateLimiter) Reset(key string) {
	rl.resetBucket(key)
	for route := range rl.state.Load().config.Policies {
		rl.resetBucket(routeKey(key, route))
	}
}

func (rl *rateLimiter) resetBucket(key string) {
	for _, bucket := range rl.store.Lookup(key) {
		bucket.Reset()
	}
}

// cleanupAger is implemented by stores whose idle age can change at runtime.
type cleanupAger interface {
	SetCleanupAge(age time.Duration)
}

// Config returns a copy of the active configuration.
func (rl *rateLimiter) Config() *Config {
	return rl.state.Load().config.Clone()
}

// UpdateConfig validates and activates config. The key extractor is rebuilt
// from it unless one was set with WithKeyExtractor.
func (rl *rateLimiter) UpdateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	next := &limiterState{config: config.Clone(), keyExtractor: rl.state.Load().keyExtractor}
	if !rl.customExtractor {
		extractor, err := ParseKeyExtractorConfig(config.KeyExtractor)
		if err != nil {
			return err
		}
		next.keyExtractor = extractor
	}
	rl.state.Store(next)

	// WithCleanupAge pins the age; otherwise it follows the config.
	if ager, ok := rl.store.(cleanupAger); ok && rl.cleanupAge == nil {
		age, _ := config.CleanupDuration() // validated above
		ager.SetCleanupAge(age)
	}

	rl.logger.Info("rate limit configuration updated",
		"burst_size", config.Defaults.BurstSize,
		"rate_limit", config.Defaults.RateLimit,
		"rate_unit", config.Defaults.RateUnit.String(),
		"policies", len(config.Policies),
	)
	return nil
}

// StartBackgroundCleanup sweeps the store every cleanup interval.
func (rl *rateLimiter) StartBackgroundCleanup() func() {
	if rl.cleanupInterval <= 0 {
		return func() {}
	}
	scheduler := NewCleanupScheduler(rl.store, rl.logger)
	if err := scheduler.Start(EverySchedule(rl.cleanupInterval)); err != nil {
		rl.logger.Error("failed to start background cleanup", "error", err)
		return func() {}
	}
	return scheduler.Stop
}
