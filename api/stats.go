package api

import (
	"net/http"

	"github.com/yourusername/ratelimiter/metrics"
)

// MetricsProvider defines the interface for getting metrics
type MetricsProvider interface {
	GetSnapshot() *metrics.Snapshot
}

// StatsHandler handles GET /stats requests
type StatsHandler struct {
	provider MetricsProvider
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(provider MetricsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// ServeHTTP writes the current snapshot as JSON.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error:   "method_not_allowed",
			Message: "Only GET requests are allowed",
		})
		return
	}
	writeJSON(w, http.StatusOK, h.provider.GetSnapshot())
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
