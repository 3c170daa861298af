package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// SyncRuns counts sync attempts by result
	SyncRuns *prometheus.CounterVec
	// RecordsSynced counts upserted records by outcome
	RecordsSynced *prometheus.CounterVec
	// SyncDuration tracks end-to-end sync duration
	SyncDuration prometheus.Histogram
	// RemoteRequests counts remote API requests by endpoint and status
	RemoteRequests *prometheus.CounterVec
	// RemoteLatency tracks remote API latency by endpoint
	RemoteLatency *prometheus.HistogramVec
	// AuthRefreshes counts token refreshes by result
	AuthRefreshes *prometheus.CounterVec
	// LoginAttempts counts interactive login attempts by result
	LoginAttempts *prometheus.CounterVec
	// ThumbnailFetches counts thumbnail cache fills by result
	ThumbnailFetches *prometheus.CounterVec
	// registry is the private registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SyncRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_runs_total",
				Help:      "Sync attempts by result",
			},
			[]string{"result"},
		),
		RecordsSynced: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_synced_total",
				Help:      "Records written by upsert outcome",
			},
			[]string{"outcome"},
		),
		SyncDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_duration_seconds",
				Help:      "End-to-end sync duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
		),
		RemoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_requests_total",
				Help:      "Remote API requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RemoteLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_latency_seconds",
				Help:      "Remote API request latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0},
			},
			[]string{"endpoint"},
		),
		AuthRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_refreshes_total",
				Help:      "Token refreshes by result",
			},
			[]string{"result"},
		),
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Interactive login attempts by result",
			},
			[]string{"result"},
		),
		ThumbnailFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "thumbnail_fetches_total",
				Help:      "Thumbnail cache fills by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.SyncRuns,
		m.RecordsSynced,
		m.SyncDuration,
		m.RemoteRequests,
		m.RemoteLatency,
		m.AuthRefreshes,
		m.LoginAttempts,
		m.ThumbnailFetches,
	)

	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Gather collects the current metric families for display.
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}
