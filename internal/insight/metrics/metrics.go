package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the insight gateway.
type Metrics struct {
	// Gateway calls by operation and outcome
	Calls *prometheus.CounterVec

	CallLatency *prometheus.HistogramVec

	// 1 while the circuit breaker is open
	BreakerOpen prometheus.Gauge

	// Enrichment jobs dropped because the queue was full
	EnrichDropped prometheus.Counter
}

// New registers the insight metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollwatch_insight_calls_total",
			Help: "Insight gateway calls by operation and outcome",
		}, []string{"operation", "outcome"}), // outcome: "success", "failure", "short_circuit"

		CallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pollwatch_insight_call_duration_seconds",
			Help:    "Duration of insight gateway calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}, []string{"operation"}),

		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "pollwatch_insight_breaker_open",
			Help: "Whether the insight circuit breaker is open",
		}),

		EnrichDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "pollwatch_insight_enrich_dropped_total",
			Help: "Enrichment jobs dropped because the queue was full",
		}),
	}
}

func (m *Metrics) IncrementCall(operation, outcome string) {
	if m != nil {
		m.Calls.WithLabelValues(operation, outcome).Inc()
	}
}

func (m *Metrics) ObserveCallLatency(operation string, d time.Duration) {
	if m != nil {
		m.CallLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
		return
	}
	m.BreakerOpen.Set(0)
}

func (m *Metrics) IncrementEnrichDropped() {
	if m != nil {
		m.EnrichDropped.Inc()
	}
}
