package metrics

import (
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRoute labels decisions that were not made for an HTTP route.
const DefaultRoute = "default"

const topClientCount = 10

// Metrics tracks rate limiting statistics. It implements
// ratelimiter.Recorder and exports its counters to Prometheus.
type Metrics struct {
	totalRequests   atomic.Int64
	allowedRequests atomic.Int64
	blockedRequests atomic.Int64

	// Per-client stats
	mu          sync.RWMutex
	clientStats map[string]*ClientStats
	startTime   time.Time

	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

// ClientStats tracks statistics for a specific client
type ClientStats struct {
	ClientID        string    `json:"client_id"`
	TotalRequests   int64     `json:"total_requests"`
	AllowedRequests int64     `json:"allowed_requests"`
	BlockedRequests int64     `json:"blocked_requests"`
	LastRequestAt   time.Time `json:"last_request_at"`
	FirstRequestAt  time.Time `json:"first_request_at"`
}

// NewMetrics creates a metrics tracker registered on registry.
// A nil registry gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		clientStats: make(map[string]*ClientStats),
		startTime:   time.Now(),
		registry:    registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ratelimiter",
				Name:      "requests_total",
				Help:      "Rate limit decisions by route and outcome.",
			},
			[]string{"route", "decision"},
		),
	}

	clients := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "ratelimiter",
			Name:      "clients",
			Help:      "Distinct client keys seen since start.",
		},
		func() float64 {
			m.mu.RLock()
			defer m.mu.RUnlock()
			return float64(len(m.clientStats))
		},
	)

	registry.MustRegister(m.requests, clients)
	return m
}

// RecordRequest records a rate limit check
func (m *Metrics) RecordRequest(clientID, route string, allowed bool) {
	m.totalRequests.Add(1)
	if allowed {
		m.allowedRequests.Add(1)
	} else {
		m.blockedRequests.Add(1)
	}
	m.requests.WithLabelValues(routeLabel(route), Decision(allowed)).Inc()

	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.clientStats[clientID]
	if !exists {
		stats = &ClientStats{
			ClientID:       clientID,
			FirstRequestAt: now,
		}
		m.clientStats[clientID] = stats
	}

	stats.TotalRequests++
	if allowed {
		stats.AllowedRequests++
	} else {
		stats.BlockedRequests++
	}
	stats.LastRequestAt = now
}

// Decision returns the label used for an outcome: "allowed" or "denied".
func Decision(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func routeLabel(route string) string {
	if route == "" {
		return DefaultRoute
	}
	return route
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	topClients := make([]*ClientStats, 0, len(m.clientStats))
	for _, stats := range m.clientStats {
		copied := *stats
		topClients = append(topClients, &copied)
	}
	uniqueClients := int64(len(m.clientStats))
	m.mu.RUnlock()

	sort.Slice(topClients, func(i, j int) bool {
		if topClients[i].TotalRequests != topClients[j].TotalRequests {
			return topClients[i].TotalRequests > topClients[j].TotalRequests
		}
		return topClients[i].ClientID < topClients[j].ClientID
	})
	if len(topClients) > topClientCount {
		topClients = topClients[:topClientCount]
	}

	return &Snapshot{
		TotalRequests:   m.totalRequests.Load(),
		AllowedRequests: m.allowedRequests.Load(),
		BlockedRequests: m.blockedRequests.Load(),
		UniqueClients:   uniqueClients,
		TopClients:      topClients,
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
		StartTime:       m.startTime,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry returns the registry the counters are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalRequests   int64          `json:"total_requests"`
	AllowedRequests int64          `json:"allowed_requests"`
	BlockedRequests int64          `json:"blocked_requests"`
	UniqueClients   int64          `json:"unique_clients"`
	TopClients      []*ClientStats `json:"top_clients"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	StartTime       time.Time      `json:"start_time"`
}

// Recorder receives rate limit decisions.
type Recorder interface {
	RecordRequest(key, route string, allowed bool)
}

// Multi fans every decision out to each recorder in order.
type Multi []Recorder

// RecordRequest implements Recorder.
func (m Multi) RecordRequest(key, route string, allowed bool) {
	for _, r := range m {
		r.RecordRequest(key, route, allowed)
	}
}
