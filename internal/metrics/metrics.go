// Package metrics provides Prometheus collectors for listing ranking queries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankingOperationsTotal = "ranking_operations_total"
	MetricRankingDuration        = "ranking_duration_seconds"
	MetricRankingListingsRanked  = "ranking_listings_ranked"
	MetricRankingCacheHits       = "ranking_cache_hits_total"
	MetricRankingCacheMisses     = "ranking_cache_misses_total"
)

// Operation labels.
const (
	OperationFeatured       = "featured"
	OperationPage           = "page"
	OperationSearch         = "search"
	OperationManageFeatured = "manage_featured"
)

// Metrics contains Prometheus metrics for ranking queries.
// All operations are thread-safe.
type Metrics struct {
	operationsTotal *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	listingsRanked  prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRankingOperationsTotal,
				Help: "Total number of ranking queries by operation",
			},
			[]string{"operation"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricRankingDuration,
				Help:    "Histogram of ranking query duration in seconds by operation",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"},
		),
		listingsRanked: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingListingsRanked,
			Help:    "Number of listings ordered per ranking pass",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingCacheHits,
			Help: "Total number of ranked results served from cache",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingCacheMisses,
			Help: "Total number of ranked results computed from the listing source",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncOperation increments the operation counter.
func (m *Metrics) IncOperation(operation string) {
	m.operationsTotal.WithLabelValues(operation).Inc()
}

// ObserveDuration records a query duration sample.
func (m *Metrics) ObserveDuration(operation string, seconds float64) {
	m.duration.WithLabelValues(operation).Observe(seconds)
}

// ObserveListingsRanked records how many listings one ranking pass ordered.
func (m *Metrics) ObserveListingsRanked(count int) {
	m.listingsRanked.Observe(float64(count))
}

// IncCacheHits increments the cache hit counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHits.Inc()
}

// IncCacheMisses increments the cache miss counter.
func (m *Metrics) IncCacheMisses() {
	m.cacheMisses.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.duration,
		m.listingsRanked,
		m.cacheHits,
		m.cacheMisses,
	}
}
