package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pollwatch/internal/audit"
	"pollwatch/internal/registry"
	"pollwatch/internal/results"
	"pollwatch/internal/results/metrics"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/ring"
	"pollwatch/pkg/platform/sentinel"
	"pollwatch/pkg/requestcontext"
)

var tracer = otel.Tracer("pollwatch/results")

// Registry resolves polling units.
type Registry interface {
	Lookup(ctx context.Context, unitID string) (registry.PollingUnit, error)
}

// Store holds exactly one current record per unit.
type Store interface {
	Get(ctx context.Context, unitID string) (*results.ResultRecord, error)
	Put(ctx context.Context, rec *results.ResultRecord) error
	List(ctx context.Context, f results.Filter) ([]*results.ResultRecord, error)
}

// Dispatcher receives ingestion events. Implementations must not block.
type Dispatcher interface {
	OnSubmission(ctx context.Context, unitID, region string)
	OnAnomaly(ctx context.Context, finding results.Finding)
}

// Enricher accepts flagged records for asynchronous narration. Enqueue must
// return immediately.
type Enricher interface {
	Enqueue(rec *results.ResultRecord, unit registry.PollingUnit)
}

// Auditor records the audit trail. Emit must not block.
type Auditor interface {
	Emit(ctx context.Context, ev audit.Event)
}

// Service is the ingestion pipeline. It owns the aggregate and is the only
// writer to the store.
//
// Ordering: ingests and operator actions for the same unit serialize on a
// per-unit lock, and whichever acquires it later wins. A verify that lands
// after a resubmission reviews the new record; a resubmission that lands after
// a verify resets the status through the rules.
type Service struct {
	registry   Registry
	store      Store
	agg        *results.Aggregator
	findings   *ring.Buffer[results.Finding]
	locks      *unitLocks
	dispatcher Dispatcher
	enricher   Enricher
	auditor    Auditor
	logger     *slog.Logger
	metrics    *metrics.Metrics

	flagResubmission bool

	// commit is held shared while a store write and its aggregate update are
	// applied, and exclusively by consistency checks.
	commit sync.RWMutex
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

func WithEnricher(e Enricher) Option {
	return func(s *Service) {
		s.enricher = e
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithFindingsCapacity bounds the recent-findings list.
func WithFindingsCapacity(n int) Option {
	return func(s *Service) {
		s.findings = ring.New[results.Finding](n)
	}
}

// WithResubmissionFlag raises a ResubmissionAfterReview finding when a new
// record arrives for a unit an operator already verified or rejected.
func WithResubmissionFlag(enabled bool) Option {
	return func(s *Service) {
		s.flagResubmission = enabled
	}
}

// New constructs the pipeline over an empty aggregate. Call Restore when the
// store already holds records.
func New(reg Registry, store Store, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		store:    store,
		agg:      results.NewAggregator(),
		findings: ring.New[results.Finding](ring.DefaultCapacity),
		locks:    newUnitLocks(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore rebuilds the aggregate from the store.
func (s *Service) Restore(ctx context.Context) error {
	s.commit.Lock()
	defer s.commit.Unlock()

	records, err := s.store.List(ctx, results.Filter{})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load results")
	}
	s.agg.Reset()
	for _, rec := range records {
		s.agg.Apply(nil, rec)
	}
	s.metrics.SetReportedUnits(int64(len(records)))
	s.logger.InfoContext(ctx, "aggregate restored", "records", len(records))
	return nil
}

// Ingest validates a submission, replaces the unit's current record and
// updates the aggregate. Hard failures leave every piece of state untouched.
func (s *Service) Ingest(ctx context.Context, sub results.Submission) (*results.Outcome, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "results.Ingest",
		trace.WithAttributes(attribute.String("unit_id", sub.UnitID)))
	defer span.End()

	out, err := s.ingest(ctx, sub)
	s.metrics.ObserveIngestLatency(time.Since(start))
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.IncrementOutcome(string(code))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		level := slog.LevelWarn
		if code == dErrors.CodeInternal {
			level = slog.LevelError
		}
		s.logger.Log(ctx, level, "result rejected",
			"request_id", requestcontext.RequestID(ctx),
			"unit_id", sub.UnitID,
			"code", code,
			"error", err,
		)
		s.audit(ctx, audit.Event{Action: audit.ActionResultRefused, UnitID: sub.UnitID, Reason: string(code)})
		return nil, err
	}

	s.metrics.IncrementOutcome(string(out.Status))
	span.SetAttributes(attribute.String("status", string(out.Status)), attribute.Int("findings", len(out.Findings)))
	s.logger.InfoContext(ctx, "result ingested",
		"request_id", requestcontext.RequestID(ctx),
		"unit_id", sub.UnitID,
		"status", out.Status,
		"findings", len(out.Findings),
		"version", out.Record.Version,
	)
	s.audit(ctx, audit.Event{Action: audit.ActionResultSubmitted, UnitID: out.Record.UnitID, Status: string(out.Status)})
	return out, nil
}

func (s *Service) ingest(ctx context.Context, sub results.Submission) (*results.Outcome, error) {
	sub.UnitID = strings.TrimSpace(sub.UnitID)
	if sub.UnitID == "" {
		return nil, dErrors.New(dErrors.CodeMalformedRecord, "unit id is required")
	}
	now := requestcontext.Now(ctx).UTC()

	var unit *registry.PollingUnit
	u, err := s.registry.Lookup(ctx, sub.UnitID)
	switch {
	case err == nil:
		unit = &u
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve polling unit")
	}

	candidate := results.ResultRecord{
		UnitID:           sub.UnitID,
		AccreditedVoters: sub.AccreditedVoters,
		Votes:            sub.Votes.Clone(),
		SubmittedAt:      sub.SubmittedAt.UTC(),
		ProofReference:   sub.ProofReference,
	}
	if sub.SubmittedAt.IsZero() {
		candidate.SubmittedAt = now
	}

	verdict, err := results.Evaluate(candidate, unit, now)
	if err != nil {
		return nil, err
	}
	candidate.Region = unit.Region
	candidate.RegisteredVoters = unit.RegisteredVoters

	release := s.locks.lock(sub.UnitID)
	defer release()

	old, err := s.current(ctx, sub.UnitID)
	if err != nil {
		return nil, err
	}
	if s.flagResubmission {
		if f, ok := results.ResubmissionFinding(old, *unit, now); ok {
			verdict.Findings = append(verdict.Findings, f)
			verdict.Status = results.DeriveStatus(verdict.Findings)
		}
	}
	candidate.Status = verdict.Status
	candidate.Version = 1
	if old != nil {
		candidate.Version = old.Version + 1
	}

	if err := s.commitRecord(ctx, &candidate, func() { s.agg.Apply(old, &candidate) }); err != nil {
		return nil, err
	}
	if old == nil {
		s.metrics.SetReportedUnits(s.agg.Snapshot().ReportedUnits)
	}

	for _, f := range verdict.Findings {
		s.findings.Push(f)
		s.metrics.IncrementFinding(string(f.Kind), string(f.Source))
	}
	if s.dispatcher != nil {
		s.dispatcher.OnSubmission(ctx, unit.ID, unit.Region)
		for _, f := range verdict.Findings {
			s.dispatcher.OnAnomaly(ctx, f)
		}
	}
	if s.enricher != nil && len(verdict.Findings) > 0 {
		s.enricher.Enqueue(candidate.Clone(), *unit)
	}

	findings := verdict.Findings
	if findings == nil {
		findings = []results.Finding{}
	}
	return &results.Outcome{Status: candidate.Status, Findings: findings, Record: candidate.Clone()}, nil
}

// Verify marks the unit's current record verified.
func (s *Service) Verify(ctx context.Context, unitID string) (*results.ResultRecord, error) {
	return s.review(ctx, unitID, results.StatusVerified)
}

// Reject marks the unit's current record rejected.
func (s *Service) Reject(ctx context.Context, unitID string) (*results.ResultRecord, error) {
	return s.review(ctx, unitID, results.StatusRejected)
}

func (s *Service) review(ctx context.Context, unitID string, target results.Status) (*results.ResultRecord, error) {
	ctx, span := tracer.Start(ctx, "results.Review",
		trace.WithAttributes(attribute.String("unit_id", unitID), attribute.String("target", string(target))))
	defer span.End()

	release := s.locks.lock(unitID)
	defer release()

	old, err := s.current(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no result recorded for unit %s", unitID)
	}
	if !old.Status.CanTransitionTo(target) {
		span.SetStatus(codes.Error, string(dErrors.CodeInvalidTransition))
		return nil, dErrors.Newf(dErrors.CodeInvalidTransition, "cannot move a %s result to %s", old.Status, target)
	}

	op := requestcontext.Operator(ctx)
	now := requestcontext.Now(ctx).UTC()
	next := old.Clone()
	next.Status = target
	next.ReviewedBy = op.ID
	next.ReviewedAt = &now
	next.Version = old.Version + 1

	if err := s.commitRecord(ctx, next, func() { s.agg.ApplyStatusChange(old.Status, target) }); err != nil {
		return nil, err
	}

	s.metrics.IncrementTransition(string(old.Status), string(target))
	s.logger.InfoContext(ctx, "result reviewed",
		"request_id", requestcontext.RequestID(ctx),
		"unit_id", unitID,
		"from", old.Status,
		"to", target,
		"operator_id", op.ID,
		"operator_role", op.Role,
	)
	action := audit.ActionResultVerified
	if target == results.StatusRejected {
		action = audit.ActionResultRejected
	}
	s.audit(ctx, audit.Event{Action: action, UnitID: unitID, Status: string(target)})
	return next.Clone(), nil
}

func (s *Service) audit(ctx context.Context, ev audit.Event) {
	if s.auditor != nil {
		s.auditor.Emit(ctx, ev)
	}
}

// commitRecord writes rec and applies its aggregate change as one step with
// respect to consistency checks. The caller holds the unit lock.
func (s *Service) commitRecord(ctx context.Context, rec *results.ResultRecord, apply func()) error {
	s.commit.RLock()
	defer s.commit.RUnlock()
	if err := s.store.Put(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "result was updated concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store result")
	}
	apply()
	return nil
}

// current returns the unit's record, or nil when it has none.
func (s *Service) current(ctx context.Context, unitID string) (*results.ResultRecord, error) {
	rec, err := s.store.Get(ctx, unitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current result")
	}
	return rec, nil
}
