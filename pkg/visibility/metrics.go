package visibility

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the engine. A nil *Metrics records nothing.
type Metrics struct {
	analyses  *prometheus.CounterVec
	durations *prometheus.HistogramVec
	cells     *prometheus.HistogramVec
	cache     *prometheus.CounterVec
}

// NewMetrics registers the engine metrics against reg, defaulting to the
// global registry when nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sightline_analyses_total",
			Help: "Completed analyses, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		durations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sightline_analysis_duration_seconds",
			Help:    "Wall-clock analysis duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		cells: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sightline_analysis_items",
			Help:    "Cells or path samples per analysis.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}, []string{"kind"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sightline_result_cache_lookups_total",
			Help: "Result cache lookups, labeled by result (hit or miss).",
		}, []string{"result"}),
	}
}

func (m *Metrics) observe(kind string, items int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.analyses.WithLabelValues(kind, outcome).Inc()
	if err == nil {
		m.durations.WithLabelValues(kind).Observe(elapsed.Seconds())
		m.cells.WithLabelValues(kind).Observe(float64(items))
	}
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cache.WithLabelValues("hit").Inc()
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}
