package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/ratelimiter/core"
	"github.com/yourusername/ratelimiter/pkg/ratelimiter"
)

// RequestIDHeader carries the request id in and out of the check endpoint.
const RequestIDHeader = "X-Request-ID"

// Handler handles rate limit check requests
type Handler struct {
	limiter ratelimiter.RateLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewHandler creates a new API handler. A nil logger uses slog.Default().
func NewHandler(limiter ratelimiter.RateLimiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		limiter: limiter,
		logger:  logger.With("component", "api"),
		now:     time.Now,
	}
}

// CheckRequest represents the incoming rate limit check request.
// Omitted limit fields fall back to the limiter's defaults.
type CheckRequest struct {
	ClientID  string  `json:"client_id"`            // Required: unique identifier (user ID, API key, IP)
	BurstSize *int64  `json:"burst_size,omitempty"` // Optional: override default burst size
	RateLimit *int64  `json:"rate_limit,omitempty"` // Optional: override default rate, 0 for unlimited
	RateUnit  *string `json:"rate_unit,omitempty"`  // Optional: "seconds" or "minutes"
}

// CheckResponse represents the rate limit check response
type CheckResponse struct {
	Allowed      bool   `json:"allowed"`                  // Whether request is allowed
	Remaining    int64  `json:"remaining"`                // Tokens remaining
	Limit        int64  `json:"limit"`                    // Burst size checked against
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"` // Milliseconds until retry (if blocked)
	ResetAt      int64  `json:"reset_at,omitempty"`       // Unix timestamp of the next token (if blocked)
	RequestID    string `json:"request_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// CheckRateLimit handles POST /check requests
func (h *Handler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)
	logger := h.logger.With("request_id", requestID)

	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed", requestID)
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body", requestID)
		return
	}
	if req.ClientID == "" {
		h.sendError(w, http.StatusBadRequest, "missing_client_id", "client_id is required", requestID)
		return
	}

	limit, err := h.limitFor(req)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_limit", err.Error(), requestID)
		return
	}

	decision, err := h.limiter.AllowWith(req.ClientID, limit)
	if err != nil {
		if errors.Is(err, ratelimiter.ErrInvalidConfig) || errors.Is(err, ratelimiter.ErrInvalidKey) {
			h.sendError(w, http.StatusBadRequest, "invalid_limit", err.Error(), requestID)
			return
		}
		logger.Error("rate limit check failed", "client_id", req.ClientID, "error", err)
		h.sendError(w, http.StatusInternalServerError, "internal_error", "rate limit check failed", requestID)
		return
	}

	response := CheckResponse{
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		Limit:     decision.Limit,
		RequestID: requestID,
	}

	statusCode := http.StatusOK
	if !decision.Allowed {
		statusCode = http.StatusTooManyRequests
		response.RetryAfterMs = decision.RetryAfter.Milliseconds()
		response.ResetAt = h.now().Add(decision.RetryAfter).Unix()
		logger.Debug("client rate limited",
			"client_id", req.ClientID,
			"retry_after_ms", response.RetryAfterMs,
		)
	}

	writeJSON(w, statusCode, response)
}

// limitFor applies the request's overrides to the default limit.
func (h *Handler) limitFor(req CheckRequest) (ratelimiter.LimitConfig, error) {
	limit := h.limiter.Config().Defaults
	if req.BurstSize != nil {
		limit.BurstSize = *req.BurstSize
	}
	if req.RateLimit != nil {
		limit.RateLimit = *req.RateLimit
	}
	if req.RateUnit != nil {
		unit, err := core.ParseRateUnit(*req.RateUnit)
		if err != nil {
			return limit, err
		}
		limit.RateUnit = unit
		limit.ConversionMillis = 0
	}
	return limit, limit.Validate()
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message, requestID string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestID: requestID,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
