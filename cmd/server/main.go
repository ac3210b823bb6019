// Command server runs the rate limiting service.
//
// Usage:
//
//	# Start with the built-in defaults (bursts of 100, 10/sec per client)
//	ratelimiter
//
//	# Load and watch a YAML configuration
//	ratelimiter --config ratelimit.yaml
//
//	# Export per-route decision counts to Redis
//	ratelimiter --redis-addr localhost:6379
//
// Endpoints:
//
//	POST /check    check a client against its limit
//	GET  /stats    JSON statistics
//	GET  /metrics  Prometheus metrics
//	GET  /health   liveness
package main

func main() {
	Execute()
}
