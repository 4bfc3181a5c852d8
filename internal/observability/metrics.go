package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "haulage_resolver"

// Metrics holds the Prometheus collectors for the resolution service.
type Metrics struct {
	// Provider attempts.
	ProviderRequests *prometheus.CounterVec   // labels: operation, provider, outcome={success,status,malformed,no_results,transport,invalid}
	ProviderDuration *prometheus.HistogramVec // labels: operation, provider
	ProvidersEnabled *prometheus.GaugeVec     // labels: provider

	// Orchestration.
	CacheLookups *prometheus.CounterVec // labels: operation, result={hit,miss,stale}
	CacheEntries *prometheus.GaugeVec   // labels: operation
	Fallbacks    *prometheus.CounterVec // labels: operation
	Coalesced    *prometheus.CounterVec // labels: operation
	Published    *prometheus.CounterVec // labels: outcome={success,error}

	// HTTP surface.
	RateLimitDecisions *prometheus.CounterVec   // labels: decision={allowed,denied}
	RequestDuration    *prometheus.HistogramVec // labels: route, status
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Upstream provider attempts by operation, provider and outcome.",
		}, []string{"operation", "provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Upstream provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation", "provider"}),
		ProvidersEnabled: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_enabled",
			Help:      "1 when the provider adapter is configured, 0 otherwise.",
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by operation and result.",
		}, []string{"operation", "result"}),
		CacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries held in the result cache, stale ones included.",
		}, []string{"operation"}),
		Fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Resolutions that exhausted every provider.",
		}, []string{"operation"}),
		Coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_lookups_total",
			Help:      "Cache misses that shared an in-flight upstream lookup.",
		}, []string{"operation"}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Resolution events handed to the event stream by outcome.",
		}, []string{"outcome"}),
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limiter decisions on API requests.",
		}, []string{"decision"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request duration by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ProviderRequests,
		m.ProviderDuration,
		m.ProvidersEnabled,
		m.CacheLookups,
		m.CacheEntries,
		m.Fallbacks,
		m.Coalesced,
		m.Published,
		m.RateLimitDecisions,
		m.RequestDuration,
	}
}
