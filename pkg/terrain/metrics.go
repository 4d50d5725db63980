package terrain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts elevation access outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	lookups   *prometheus.CounterVec
	queries   prometheus.Counter
	failures  prometheus.Counter
	fallbacks prometheus.Counter
}

// NewMetrics registers the elevation metrics against reg, defaulting to the
// global registry when nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sightline_elevation_cache_lookups_total",
			Help: "Elevation cache lookups, labeled by result (hit or miss).",
		}, []string{"result"}),
		queries: f.NewCounter(prometheus.CounterOpts{
			Name: "sightline_elevation_provider_queries_total",
			Help: "Individual elevation provider queries, including retries.",
		}),
		failures: f.NewCounter(prometheus.CounterOpts{
			Name: "sightline_elevation_failures_total",
			Help: "Coordinates that yielded no valid elevation after all attempts.",
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "sightline_elevation_fallbacks_total",
			Help: "Batch coordinates resolved with a fallback value.",
		}),
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.lookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) cacheMiss() {
	if m != nil {
		m.lookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) query() {
	if m != nil {
		m.queries.Inc()
	}
}

func (m *Metrics) failure() {
	if m != nil {
		m.failures.Inc()
	}
}

func (m *Metrics) fallback() {
	if m != nil {
		m.fallbacks.Inc()
	}
}
