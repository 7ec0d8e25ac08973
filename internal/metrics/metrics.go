// Package metrics exposes the Prometheus instruments for composition, editing
// and live propagation. All instruments are registered on the default
// registry at init and served by the HTTP server under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CompositionsTotal counts page compositions.
	// Labels:
	//   - state: "ready", "fallback", "empty", "hidden", "not_found", "unavailable"
	CompositionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trattoria_compositions_total",
			Help: "Total number of page compositions by resulting state",
		},
		[]string{"state"},
	)

	// SectionsSkippedTotal counts sections left out of a composition.
	// Labels:
	//   - reason: "unknown_type", "render_error"
	SectionsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trattoria_sections_skipped_total",
			Help: "Sections skipped during composition",
		},
		[]string{"reason"},
	)

	// CompositionDuration measures compose latency including the repository read.
	CompositionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trattoria_composition_duration_seconds",
			Help:    "Duration of page compositions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// SavesTotal counts editor writes.
	// Labels:
	//   - outcome: "success", "failure", "rejected"
	SavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trattoria_section_saves_total",
			Help: "Section writes issued by the admin editor",
		},
		[]string{"outcome"},
	)

	// EventsPublishedTotal counts change events by type.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trattoria_events_published_total",
			Help: "Change events published on the propagation channel",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal counts per-listener deliveries dropped because the
	// listener's buffer was full or it was gone.
	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trattoria_events_dropped_total",
			Help: "Change event deliveries dropped for slow or closed listeners",
		},
	)

	// Subscribers is the number of current propagation listeners.
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trattoria_subscribers",
			Help: "Currently subscribed change listeners",
		},
	)

	// LiveClients is the number of connected websocket tabs.
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trattoria_live_clients",
			Help: "Connected live-update websocket clients",
		},
	)

	// HTTPRequestsTotal counts served requests.
	// Labels:
	//   - route: the chi route pattern, e.g. "/api/pages/{slug}"
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trattoria_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration measures handler latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trattoria_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// RepositoryBreakerState is 0 closed, 1 half-open, 2 open.
	RepositoryBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trattoria_repository_breaker_state",
			Help: "Circuit breaker state guarding the content repository",
		},
		[]string{"name"},
	)

	// RepositoryCallsTotal counts guarded repository calls.
	// Labels:
	//   - outcome: "success", "failure", "rejected"
	RepositoryCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trattoria_repository_calls_total",
			Help: "Content repository calls through the circuit breaker",
		},
		[]string{"op", "outcome"},
	)
)
