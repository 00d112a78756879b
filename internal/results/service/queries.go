package service

import (
	"context"
	"errors"

	"pollwatch/internal/results"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/sentinel"
)

// Snapshot returns the running aggregate.
func (s *Service) Snapshot(_ context.Context) results.Snapshot {
	return s.agg.Snapshot()
}

// VerifySnapshot recomputes the aggregate from the store and compares it with
// the running totals. Commits are paused while both are read.
func (s *Service) VerifySnapshot(ctx context.Context) (*results.Consistency, error) {
	s.commit.Lock()
	records, err := s.store.List(ctx, results.Filter{})
	incremental := s.agg.Snapshot()
	s.commit.Unlock()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load results")
	}

	recomputed := results.RecomputeFromScratch(records)
	consistent := incremental.Equal(recomputed)
	if !consistent {
		s.logger.ErrorContext(ctx, "aggregate diverged from store",
			"incremental_accredited", incremental.TotalAccredited,
			"recomputed_accredited", recomputed.TotalAccredited,
		)
	}
	return &results.Consistency{Incremental: incremental, Recomputed: recomputed, Consistent: consistent}, nil
}

// List returns current records matching f.
func (s *Service) List(ctx context.Context, f results.Filter) ([]*results.ResultRecord, error) {
	if f.Status != "" && !f.Status.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown status %q", f.Status)
	}
	records, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list results")
	}
	return records, nil
}

// Get returns the current record for a unit.
func (s *Service) Get(ctx context.Context, unitID string) (*results.ResultRecord, error) {
	rec, err := s.store.Get(ctx, unitID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no result recorded for unit %s", unitID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load result")
	}
	return rec, nil
}

// RecentFindings returns up to limit findings, newest first.
func (s *Service) RecentFindings(_ context.Context, limit int) []results.Finding {
	return s.findings.Recent(limit)
}

// AppendFindings adds supplementary findings, such as narration from the
// insight gateway, to the recent list. Records and statuses are untouched.
func (s *Service) AppendFindings(ctx context.Context, findings []results.Finding) {
	for _, f := range findings {
		s.findings.Push(f)
		s.metrics.IncrementFinding(string(f.Kind), string(f.Source))
	}
	if len(findings) > 0 {
		s.logger.InfoContext(ctx, "supplementary findings appended", "count", len(findings))
	}
}
