// Package ratelimiter provides token bucket rate limiting for Go services.
//
// Each client key gets its own bucket from a Store. Buckets are lock-free
// (see package core) and hold no limits of their own, so one bucket can be
// checked against different burst sizes and rates over its lifetime.
//
// # Quick Start
//
//	limiter, err := ratelimiter.NewRateLimiter(
//	    ratelimiter.WithDefaults(100, 10), // bursts of 100, 10/sec refill
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := limiter.Allow("user-123")
//	if !decision.Allowed {
//	    fmt.Printf("Rate limited. Retry after %v\n", decision.RetryAfter)
//	}
//
// A single limit without keys is available as Limiter (one goroutine) or
// SharedLimiter (cheap copies sharing one bucket).
//
// # HTTP Middleware
//
//	http.Handle("/api/", limiter.Middleware(yourHandler))
//
// The middleware sets X-RateLimit-Limit and X-RateLimit-Remaining on every
// response, plus X-RateLimit-Reset and Retry-After when it answers 429.
//
// # Configuration
//
//	defaults:
//	  burst_size: 100
//	  rate_limit: 10
//	  rate_unit: seconds
//
//	policies:
//	  "/api/login":
//	    burst_size: 5
//	    rate_limit: 5
//	    rate_unit: minutes
//	  "/health":
//	    rate_limit: 0   # unlimited
//
//	key_extractor: "ip"   # ip, ip-proxy, bearer, header:<name>, cookie:<name>, static:<key>
//	cleanup_age: "1h"
//
// ConfigWatcher reloads such a file on change, and CleanupScheduler removes
// idle buckets on a cron schedule.
package ratelimiter
