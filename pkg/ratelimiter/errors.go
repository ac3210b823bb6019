package ratelimiter

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNegativeRateLimit is returned when a rate limit is below zero.
	// Zero itself is accepted and means unlimited.
	ErrNegativeRateLimit = errors.New("rate limit cannot be negative")

	// ErrNegativeConversion is returned when an explicit conversion factor is below zero
	ErrNegativeConversion = errors.New("conversion milliseconds cannot be negative")

	// ErrInvalidKey is returned when the rate limit key is empty
	ErrInvalidKey = errors.New("rate limit key cannot be empty")

	// ErrStoreFailed is returned when store operations fail
	ErrStoreFailed = errors.New("store operation failed")

	// ErrKeyExtractionFailed is returned when key extraction from request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")
)
