package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// resource pipeline.
type Metrics struct {
	PopulateRuns       *prometheus.CounterVec // labels: outcome={populated,empty,upstream_error,persist_error,not_found,store_error}
	ResourcesPersisted prometheus.Counter
	ResourcesFiltered  prometheus.Counter // candidates dropped by dedup, vague-name, or cap rules
	WorkerRunning      prometheus.Gauge

	// Upstream Overpass metrics.
	UpstreamRequests *prometheus.CounterVec // labels: outcome={success,error}
	UpstreamRetries  prometheus.Counter
	UpstreamDuration prometheus.Histogram

	// Cache metrics.
	CacheLookups       *prometheus.CounterVec // labels: result={hit,miss}
	CacheInvalidations prometheus.Counter

	// Notification metrics.
	EventsPublished prometheus.Counter

	// Nearby lookup latency, cache path included.
	NearbyDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PopulateRuns,
		m.ResourcesPersisted,
		m.ResourcesFiltered,
		m.WorkerRunning,
		m.UpstreamRequests,
		m.UpstreamRetries,
		m.UpstreamDuration,
		m.CacheLookups,
		m.CacheInvalidations,
		m.EventsPublished,
		m.NearbyDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PopulateRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "populate_runs_total",
			Help:      "Auto-population runs by outcome.",
		}, []string{"outcome"}),
		ResourcesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "resources_persisted_total",
			Help:      "Resources written to durable storage.",
		}),
		ResourcesFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "resources_filtered_total",
			Help:      "Candidates dropped by dedup, vague-name, or per-type cap rules.",
		}),
		WorkerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "resource_pipeline",
			Name:      "worker_running",
			Help:      "1 when the approval worker is active, 0 when shut down.",
		}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "upstream_requests_total",
			Help:      "Overpass query attempts by outcome.",
		}, []string{"outcome"}),
		UpstreamRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "upstream_retries_total",
			Help:      "Overpass query retries after a failed attempt.",
		}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resource_pipeline",
			Name:      "upstream_duration_seconds",
			Help:      "Overpass request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "cache_lookups_total",
			Help:      "Nearby-resource cache lookups by result.",
		}, []string{"result"}),
		CacheInvalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "cache_invalidations_total",
			Help:      "Bulk cache invalidations by disaster.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "resource_pipeline",
			Name:      "events_published_total",
			Help:      "resources_updated notifications published.",
		}),
		NearbyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "resource_pipeline",
			Name:      "nearby_duration_seconds",
			Help:      "Duration of on-demand nearby lookups.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}),
	}
}
