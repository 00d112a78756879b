package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ingestion pipeline.
type Metrics struct {
	// Ingestion outcomes: accepted status or rejection code
	IngestOutcome *prometheus.CounterVec

	// Findings raised by kind and source
	Findings *prometheus.CounterVec

	// Operator status transitions
	Transitions *prometheus.CounterVec

	IngestLatency prometheus.Histogram

	// Units that currently have a record
	ReportedUnits prometheus.Gauge
}

// New registers the ingestion metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollwatch_ingest_outcomes_total",
			Help: "Result submissions by outcome",
		}, []string{"outcome"}), // outcome: "pending", "flagged", "malformed_record", "unknown_unit", ...

		Findings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollwatch_findings_total",
			Help: "Anomaly findings by kind and source",
		}, []string{"kind", "source"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pollwatch_status_transitions_total",
			Help: "Operator status transitions",
		}, []string{"from", "to"}),

		IngestLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollwatch_ingest_duration_seconds",
			Help:    "Duration of a single ingestion including storage",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),

		ReportedUnits: f.NewGauge(prometheus.GaugeOpts{
			Name: "pollwatch_reported_units",
			Help: "Polling units with a current result record",
		}),
	}
}

// IncrementOutcome records an ingestion outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.IngestOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementFinding records a raised finding.
func (m *Metrics) IncrementFinding(kind, source string) {
	if m != nil {
		m.Findings.WithLabelValues(kind, source).Inc()
	}
}

// IncrementTransition records an operator status change.
func (m *Metrics) IncrementTransition(from, to string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to).Inc()
	}
}

// ObserveIngestLatency records the duration of one ingestion.
func (m *Metrics) ObserveIngestLatency(d time.Duration) {
	if m != nil {
		m.IngestLatency.Observe(d.Seconds())
	}
}

// SetReportedUnits updates the reported-units gauge.
func (m *Metrics) SetReportedUnits(n int64) {
	if m != nil {
		m.ReportedUnits.Set(float64(n))
	}
}
