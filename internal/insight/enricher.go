package insight

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"pollwatch/internal/insight/metrics"
	"pollwatch/internal/registry"
	"pollwatch/internal/results"
)

// FindingSink receives narrated findings. It only appends; records and
// statuses are never touched.
type FindingSink interface {
	AppendFindings(ctx context.Context, findings []results.Finding)
}

type job struct {
	unit UnitData
}

// Enricher narrates flagged records in the background. Enqueue never blocks:
// when the queue is full the record is skipped.
type Enricher struct {
	client  *Client
	queue   chan job
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type EnricherOption func(*Enricher)

// WithRateLimit paces gateway calls to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) EnricherOption {
	return func(e *Enricher) {
		e.limiter = rate.NewLimiter(r, burst)
	}
}

func WithEnricherLogger(logger *slog.Logger) EnricherOption {
	return func(e *Enricher) {
		e.logger = logger
	}
}

func WithEnricherMetrics(m *metrics.Metrics) EnricherOption {
	return func(e *Enricher) {
		e.metrics = m
	}
}

// NewEnricher creates an enricher with room for queueSize pending records.
func NewEnricher(client *Client, queueSize int, opts ...EnricherOption) *Enricher {
	if queueSize <= 0 {
		queueSize = 64
	}
	e := &Enricher{
		client:  client,
		queue:   make(chan job, queueSize),
		limiter: rate.NewLimiter(rate.Limit(2), 4),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enqueue schedules rec for narration.
func (e *Enricher) Enqueue(rec *results.ResultRecord, unit registry.PollingUnit) {
	if rec == nil || !e.client.Available() {
		return
	}
	select {
	case e.queue <- job{unit: FromRecord(rec, unit)}:
	default:
		e.metrics.IncrementEnrichDropped()
		e.logger.Warn("insight queue full, skipping narration", "unit_id", rec.UnitID)
	}
}

// Run narrates queued records into sink until ctx is cancelled.
func (e *Enricher) Run(ctx context.Context, sink FindingSink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j := <-e.queue:
			if err := e.limiter.Wait(ctx); err != nil {
				return err
			}
			reports := e.client.Anomalies(ctx, []UnitData{j.unit})
			if len(reports) == 0 {
				continue
			}
			now := time.Now().UTC()
			findings := make([]results.Finding, 0, len(reports))
			for _, r := range reports {
				f := r.ToFinding()
				f.DetectedAt = now
				findings = append(findings, f)
			}
			sink.AppendFindings(ctx, findings)
		}
	}
}
