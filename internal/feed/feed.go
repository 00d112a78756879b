// Package feed drives the ingestion pipeline with simulated field
// submissions, the way a live deployment would receive them from agents.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"pollwatch/internal/results"
	dErrors "pollwatch/pkg/domain-errors"
)

const (
	// DefaultProbability is the chance that a tick produces a submission.
	DefaultProbability = 0.3

	firstUnit  = 100
	unitSpan   = 50
	maxAccred  = 450
	maxPartyAB = 200
	maxPartyC  = 50
)

// Ingester is the pipeline entry point the feed submits into.
type Ingester interface {
	Ingest(ctx context.Context, sub results.Submission) (*results.Outcome, error)
}

// Feed submits a random result on a fraction of its ticks.
type Feed struct {
	ingester    Ingester
	limiter     *rate.Limiter
	probability float64
	rng         *rand.Rand
	now         func() time.Time
	logger      *slog.Logger
}

type Option func(*Feed)

// WithRand replaces the random source. Tests pass a seeded PCG.
func WithRand(rng *rand.Rand) Option {
	return func(f *Feed) {
		if rng != nil {
			f.rng = rng
		}
	}
}

func WithProbability(p float64) Option {
	return func(f *Feed) {
		if p >= 0 && p <= 1 {
			f.probability = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Feed) {
		if now != nil {
			f.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Feed) {
		f.logger = logger
	}
}

// New creates a feed ticking once per interval.
func New(ingester Ingester, interval time.Duration, opts ...Option) *Feed {
	if interval <= 0 {
		interval = 8 * time.Second
	}
	f := &Feed{
		ingester:    ingester,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		probability: DefaultProbability,
		rng:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run ticks until ctx is cancelled. Rejected submissions are logged and the
// feed carries on.
func (f *Feed) Run(ctx context.Context) error {
	// the first token is spent up front so the first tick waits a full interval
	f.limiter.Allow()
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if _, err := f.Tick(ctx); err != nil && ctx.Err() == nil {
			f.logger.WarnContext(ctx, "simulated submission rejected",
				"code", dErrors.CodeOf(err),
				"error", err,
			)
		}
	}
}

// Tick rolls once and, on success, ingests a generated submission. It
// reports whether a submission was made.
func (f *Feed) Tick(ctx context.Context) (bool, error) {
	if f.rng.Float64() >= f.probability {
		return false, nil
	}
	sub := f.Generate()
	out, err := f.ingester.Ingest(ctx, sub)
	if err != nil {
		return true, err
	}
	f.logger.DebugContext(ctx, "simulated submission ingested",
		"unit_id", sub.UnitID,
		"status", out.Status,
		"findings", len(out.Findings),
	)
	return true, nil
}

// Generate builds a random submission for one of PU-100..PU-149.
func (f *Feed) Generate() results.Submission {
	return results.Submission{
		UnitID:           fmt.Sprintf("PU-%d", firstUnit+f.rng.IntN(unitSpan)),
		AccreditedVoters: f.rng.Int64N(maxAccred),
		Votes: results.Votes{
			"party_a": f.rng.Int64N(maxPartyAB),
			"party_b": f.rng.Int64N(maxPartyAB),
			"party_c": f.rng.Int64N(maxPartyC),
		},
		SubmittedAt: f.now().UTC(),
	}
}

// ReferenceSubmissions are the five reference results for PU-101..PU-105,
// stamped at now minus their original offsets.
func ReferenceSubmissions(now time.Time) []results.Submission {
	at := func(ago time.Duration) time.Time { return now.Add(-ago).UTC() }
	return []results.Submission{
		{UnitID: "PU-101", AccreditedVoters: 450, Votes: results.Votes{"party_a": 200, "party_b": 180, "party_c": 60}, SubmittedAt: at(100 * time.Second)},
		{UnitID: "PU-102", AccreditedVoters: 300, Votes: results.Votes{"party_a": 100, "party_b": 150, "party_c": 40}, SubmittedAt: at(200 * time.Second)},
		{UnitID: "PU-103", AccreditedVoters: 1150, Votes: results.Votes{"party_a": 600, "party_b": 500, "party_c": 40}, SubmittedAt: at(50 * time.Second)},
		{UnitID: "PU-104", AccreditedVoters: 550, Votes: results.Votes{"party_a": 300, "party_b": 200, "party_c": 45}, SubmittedAt: at(300 * time.Second)},
		{UnitID: "PU-105", AccreditedVoters: 410, Votes: results.Votes{"party_a": 200, "party_b": 200, "party_c": 5}, SubmittedAt: at(5 * time.Second)},
	}
}

// SeedReference ingests the reference results through the normal pipeline.
// Units missing from the registry are skipped.
func SeedReference(ctx context.Context, ingester Ingester, now time.Time) (int, error) {
	var (
		seeded int
		errs   []error
	)
	for _, sub := range ReferenceSubmissions(now) {
		if _, err := ingester.Ingest(ctx, sub); err != nil {
			if dErrors.Is(err, dErrors.CodeUnknownUnit) {
				continue
			}
			errs = append(errs, fmt.Errorf("seed %s: %w", sub.UnitID, err))
			continue
		}
		seeded++
	}
	return seeded, errors.Join(errs...)
}
