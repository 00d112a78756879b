package results_test

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"pollwatch/internal/registry"
	"pollwatch/internal/results"
	dErrors "pollwatch/pkg/domain-errors"
)

type RulesSuite struct {
	suite.Suite
	at time.Time
}

func TestRulesSuite(t *testing.T) {
	suite.Run(t, new(RulesSuite))
}

func (s *RulesSuite) SetupTest() {
	s.at = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func unit(registered int64) *registry.PollingUnit {
	return &registry.PollingUnit{ID: "PU-1", Name: "School", Region: "North", RegisteredVoters: registered}
}

func record(accredited int64, votes results.Votes) results.ResultRecord {
	return results.ResultRecord{UnitID: "PU-1", AccreditedVoters: accredited, Votes: votes}
}

func kinds(findings []results.Finding) []results.Kind {
	out := make([]results.Kind, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.Kind)
	}
	return out
}

func (s *RulesSuite) TestHardFailures() {
	s.Run("unknown unit", func() {
		v, err := results.Evaluate(record(10, nil), nil, s.at)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnknownUnit))
		s.False(v.Accepted)
	})

	s.Run("negative accredited voters", func() {
		_, err := results.Evaluate(record(-1, nil), unit(100), s.at)
		s.True(dErrors.Is(err, dErrors.CodeMalformedRecord))
	})

	s.Run("negative vote count", func() {
		_, err := results.Evaluate(record(10, results.Votes{"a": 5, "b": -2}), unit(100), s.at)
		s.True(dErrors.Is(err, dErrors.CodeMalformedRecord))
		s.Contains(err.Error(), `"b"`)
	})

	s.Run("counts that would wrap the vote total", func() {
		huge := int64(math.MaxInt64/2 + 1)
		v, err := results.Evaluate(record(100, results.Votes{"a": huge, "b": huge}), unit(400), s.at)
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeMalformedRecord))
		s.False(v.Accepted)
	})

	s.Run("accredited voters above the cap", func() {
		_, err := results.Evaluate(record(registry.MaxVoterCount+1, nil), unit(400), s.at)
		s.True(dErrors.Is(err, dErrors.CodeMalformedRecord))
	})

	s.Run("too many candidates", func() {
		votes := make(results.Votes, results.MaxCandidates+1)
		for i := range results.MaxCandidates + 1 {
			votes[fmt.Sprintf("c%d", i)] = 0
		}
		_, err := results.Evaluate(record(10, votes), unit(100), s.at)
		s.True(dErrors.Is(err, dErrors.CodeMalformedRecord))
	})
}

func (s *RulesSuite) TestCountsAtTheCapStillFireRules() {
	limit := registry.MaxVoterCount
	v, err := results.Evaluate(record(limit, results.Votes{"a": limit, "b": limit}), unit(limit), s.at)
	s.Require().NoError(err)
	s.Equal(results.StatusFlagged, v.Status)
	s.Contains(kinds(v.Findings), results.KindOverVoting)
	s.Contains(kinds(v.Findings), results.KindExcessiveTurnout)
}

func (s *RulesSuite) TestOverAccreditation() {
	v, err := results.Evaluate(record(410, results.Votes{"a": 200, "b": 150}), unit(400), s.at)
	s.Require().NoError(err)
	s.True(v.Accepted)
	s.Equal(results.StatusFlagged, v.Status)
	s.Contains(kinds(v.Findings), results.KindOverAccreditation)
	s.Equal(results.SeverityHigh, v.Findings[0].Severity)
	s.Equal(results.SourceRules, v.Findings[0].Source)
}

func (s *RulesSuite) TestOverVoting() {
	v, err := results.Evaluate(record(100, results.Votes{"a": 60, "b": 60}), unit(1000), s.at)
	s.Require().NoError(err)
	s.Equal(results.StatusFlagged, v.Status)
	s.Equal([]results.Kind{results.KindOverVoting}, kinds(v.Findings))
	s.Equal(results.SeverityHigh, v.Findings[0].Severity)
}

func (s *RulesSuite) TestExcessiveTurnout() {
	s.Run("above threshold", func() {
		v, err := results.Evaluate(record(480, results.Votes{"a": 240, "b": 230}), unit(500), s.at)
		s.Require().NoError(err)
		s.Equal(results.StatusFlagged, v.Status)
		s.Equal([]results.Kind{results.KindExcessiveTurnout}, kinds(v.Findings))
		s.Equal(results.SeverityMedium, v.Findings[0].Severity)
	})

	s.Run("exactly at threshold does not fire", func() {
		v, err := results.Evaluate(record(475, results.Votes{"a": 240, "b": 230}), unit(500), s.at)
		s.Require().NoError(err)
		s.Empty(v.Findings)
	})

	s.Run("skipped when nobody is registered", func() {
		v, err := results.Evaluate(record(0, nil), unit(0), s.at)
		s.Require().NoError(err)
		s.Equal(results.StatusPending, v.Status)
		s.Empty(v.Findings)
	})
}

func (s *RulesSuite) TestDominantPartyShare() {
	s.Run("above threshold", func() {
		v, err := results.Evaluate(record(300, results.Votes{"a": 199, "b": 1}), unit(1000), s.at)
		s.Require().NoError(err)
		s.Equal(results.StatusFlagged, v.Status)
		s.Equal([]results.Kind{results.KindDominantPartyShare}, kinds(v.Findings))
		s.Contains(v.Findings[0].Description, "a")
	})

	s.Run("exactly 98 percent does not fire", func() {
		v, err := results.Evaluate(record(300, results.Votes{"a": 98, "b": 2}), unit(1000), s.at)
		s.Require().NoError(err)
		s.Empty(v.Findings)
	})

	s.Run("no votes cast", func() {
		v, err := results.Evaluate(record(300, results.Votes{}), unit(1000), s.at)
		s.Require().NoError(err)
		s.Empty(v.Findings)
	})
}

func (s *RulesSuite) TestCleanRecordIsPending() {
	v, err := results.Evaluate(record(300, results.Votes{"a": 150, "b": 100, "c": 40}), unit(500), s.at)
	s.Require().NoError(err)
	s.True(v.Accepted)
	s.Equal(results.StatusPending, v.Status)
	s.Empty(v.Findings)
}

func (s *RulesSuite) TestRulesFireTogetherInOrder() {
	v, err := results.Evaluate(record(410, results.Votes{"a": 500}), unit(400), s.at)
	s.Require().NoError(err)
	s.Equal([]results.Kind{
		results.KindOverAccreditation,
		results.KindOverVoting,
		results.KindExcessiveTurnout,
		results.KindDominantPartyShare,
	}, kinds(v.Findings))
	for _, f := range v.Findings {
		s.Equal("PU-1", f.UnitID)
		s.Equal("School", f.UnitName)
		s.Equal(s.at, f.DetectedAt)
	}
}

func (s *RulesSuite) TestResubmissionFinding() {
	u := *unit(500)

	s.Run("no previous record", func() {
		_, ok := results.ResubmissionFinding(nil, u, s.at)
		s.False(ok)
	})

	s.Run("previous record still open", func() {
		_, ok := results.ResubmissionFinding(&results.ResultRecord{Status: results.StatusFlagged}, u, s.at)
		s.False(ok)
	})

	s.Run("previous record verified", func() {
		f, ok := results.ResubmissionFinding(&results.ResultRecord{Status: results.StatusVerified}, u, s.at)
		s.Require().True(ok)
		s.Equal(results.KindResubmissionAfterReview, f.Kind)
		s.Equal(results.SeverityLow, f.Severity)
	})
}

func (s *RulesSuite) TestStatusTransitions() {
	s.True(results.StatusPending.CanTransitionTo(results.StatusVerified))
	s.True(results.StatusPending.CanTransitionTo(results.StatusRejected))
	s.True(results.StatusFlagged.CanTransitionTo(results.StatusVerified))
	s.True(results.StatusFlagged.CanTransitionTo(results.StatusRejected))
	s.False(results.StatusVerified.CanTransitionTo(results.StatusRejected))
	s.False(results.StatusRejected.CanTransitionTo(results.StatusVerified))
	s.False(results.StatusPending.CanTransitionTo(results.StatusFlagged))
}
