package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the user module.
// Tracks lifecycle transitions, classified failures, page fetch latency and
// count cache effectiveness.
type Metrics struct {
	Transitions       *prometheus.CounterVec
	Errors            *prometheus.CounterVec
	PageFetchDuration prometheus.Histogram
	CountCacheHits    prometheus.Counter
	CountCacheMisses  prometheus.Counter
}

// New registers the user metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "users_lifecycle_transitions_total",
			Help: "Committed user lifecycle transitions",
		}, []string{"transition"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "users_errors_total",
			Help: "Classified errors returned by user operations",
		}, []string{"operation", "code"}),
		PageFetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "users_page_fetch_duration_seconds",
			Help:    "Duration of paginated user reads (rows and count)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CountCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "users_count_cache_hits_total",
			Help: "Total count queries answered from the cache",
		}),
		CountCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "users_count_cache_misses_total",
			Help: "Total count queries that went to the store",
		}),
	}
}

// IncTransition records a committed transition (created, soft_deleted, restored).
func (m *Metrics) IncTransition(name string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(name).Inc()
}

// IncError records an error returned to a caller.
func (m *Metrics) IncError(operation, code string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(operation, code).Inc()
}

// ObservePageFetch records the duration of a page fetch.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObservePageFetch(start time.Time) {
	if m == nil {
		return
	}
	m.PageFetchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncCountCacheHit() {
	if m == nil {
		return
	}
	m.CountCacheHits.Inc()
}

func (m *Metrics) IncCountCacheMiss() {
	if m == nil {
		return
	}
	m.CountCacheMisses.Inc()
}
