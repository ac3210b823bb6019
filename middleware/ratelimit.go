// Package middleware limits the total request rate of an HTTP handler,
// independent of which client sends the requests.
package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/yourusername/ratelimiter/pkg/ratelimiter"
)

// Global rejects requests with 429 once the shared bucket is empty.
// Every request draws from the same bucket; use RateLimiter.Middleware
// for per-client limits.
func Global(limiter ratelimiter.SharedLimiter) func(http.Handler) http.Handler {
	limit := strconv.FormatInt(limiter.Config().Burst(), 10)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed := limiter.Allow()

			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(limiter.Remaining(), 10))

			if !allowed {
				retryAfter := limiter.RetryAfter()
				w.Header().Set("Retry-After", strconv.FormatInt(ratelimiter.RetryAfterSeconds(retryAfter), 10))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				json.NewEncoder(w).Encode(map[string]any{
					"error":          "rate_limit_exceeded",
					"message":        "Too many requests. Please try again later.",
					"retry_after_ms": retryAfter.Milliseconds(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
