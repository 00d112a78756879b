package results

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"pollwatch/internal/registry"
	dErrors "pollwatch/pkg/domain-errors"
)

// Thresholds are expressed as percentages so the comparisons stay in integers.
const (
	// MaxCandidates bounds the vote map so the cast total stays far from
	// overflow: MaxCandidates * registry.MaxVoterCount * 100 < MaxInt64.
	MaxCandidates = 1000

	turnoutThresholdPct  = 95
	dominantShareMinPct  = 98
	recommendInvestigate = "Dispatch an observer to review the unit's result sheet."
)

// Evaluate runs validation and the anomaly rules over a candidate record.
// This is pure domain logic: no I/O, no clock, no shared state.
//
// Hard failures return an error and a rejected verdict:
//   - unit == nil: unknown_unit
//   - negative or above-cap accredited or vote count: malformed_record
//   - more than MaxCandidates vote entries: malformed_record
//
// Otherwise the record is accepted. Any fired rule flags it; a clean record
// stays pending until an operator reviews it.
func Evaluate(rec ResultRecord, unit *registry.PollingUnit, at time.Time) (Verdict, error) {
	if unit == nil {
		return Verdict{}, dErrors.Newf(dErrors.CodeUnknownUnit, "polling unit %q is not registered", rec.UnitID)
	}
	if err := checkBounds(rec); err != nil {
		return Verdict{}, err
	}

	var findings []Finding
	add := func(sev Severity, kind Kind, desc, advice string) {
		findings = append(findings, Finding{
			UnitID:         unit.ID,
			UnitName:       unit.Name,
			Severity:       sev,
			Kind:           kind,
			Description:    desc,
			Recommendation: advice,
			Source:         SourceRules,
			DetectedAt:     at,
		})
	}

	registered := unit.RegisteredVoters
	accredited := rec.AccreditedVoters
	cast := rec.Votes.Total()

	// Rule 1: more voters accredited than are registered.
	if accredited > registered {
		add(SeverityHigh, KindOverAccreditation,
			fmt.Sprintf("Accredited voters (%d) exceed registered voters (%d).", accredited, registered),
			recommendInvestigate)
	}

	// Rule 2: more votes cast than voters accredited.
	if cast > accredited {
		add(SeverityHigh, KindOverVoting,
			fmt.Sprintf("Total votes cast (%d) exceed accredited voters (%d).", cast, accredited),
			"Withhold the result pending a recount.")
	}

	// Rule 3: turnout above 95%. Skipped when nobody is registered.
	if registered > 0 && accredited*100 > registered*turnoutThresholdPct {
		add(SeverityMedium, KindExcessiveTurnout,
			fmt.Sprintf("Turnout of %.1f%% is above the %d%% threshold.",
				float64(accredited)*100/float64(registered), turnoutThresholdPct),
			"Cross-check the accreditation log against the register.")
	}

	// Rule 4: a single candidate took more than 98% of the votes cast.
	if cast > 0 {
		if id, n := leader(rec.Votes); n*100 > cast*dominantShareMinPct {
			add(SeverityMedium, KindDominantPartyShare,
				fmt.Sprintf("Candidate %s received %.1f%% of votes cast.", id, float64(n)*100/float64(cast)),
				recommendInvestigate)
		}
	}

	return Verdict{Accepted: true, Status: DeriveStatus(findings), Findings: findings}, nil
}

// DeriveStatus maps findings to the initial status of an accepted record.
func DeriveStatus(findings []Finding) Status {
	if len(findings) > 0 {
		return StatusFlagged
	}
	return StatusPending
}

// ResubmissionFinding reports a new submission arriving for a unit an operator
// has already decided. ok is false when prev is nil or not terminal.
func ResubmissionFinding(prev *ResultRecord, unit registry.PollingUnit, at time.Time) (Finding, bool) {
	if prev == nil || !prev.Status.IsTerminal() {
		return Finding{}, false
	}
	return Finding{
		UnitID:         unit.ID,
		UnitName:       unit.Name,
		Severity:       SeverityLow,
		Kind:           KindResubmissionAfterReview,
		Description:    fmt.Sprintf("New result submitted after the previous one was %s.", prev.Status),
		Recommendation: "Confirm the resubmission with the presiding officer.",
		Source:         SourceRules,
		DetectedAt:     at,
	}, true
}

func checkBounds(rec ResultRecord) error {
	if rec.AccreditedVoters < 0 {
		return dErrors.Newf(dErrors.CodeMalformedRecord, "accredited voters must be non-negative, got %d", rec.AccreditedVoters)
	}
	if rec.AccreditedVoters > registry.MaxVoterCount {
		return dErrors.Newf(dErrors.CodeMalformedRecord, "accredited voters must be at most %d, got %d", registry.MaxVoterCount, rec.AccreditedVoters)
	}
	if len(rec.Votes) > MaxCandidates {
		return dErrors.Newf(dErrors.CodeMalformedRecord, "at most %d candidates per record, got %d", MaxCandidates, len(rec.Votes))
	}
	for id, n := range rec.Votes {
		if n < 0 {
			return dErrors.Newf(dErrors.CodeMalformedRecord, "votes for %q must be non-negative, got %d", id, n)
		}
		if n > registry.MaxVoterCount {
			return dErrors.Newf(dErrors.CodeMalformedRecord, "votes for %q must be at most %d, got %d", id, registry.MaxVoterCount, n)
		}
	}
	return nil
}

// leader returns the candidate with the most votes. Ties go to the lowest id.
func leader(v Votes) (string, int64) {
	ids := slices.Sorted(maps.Keys(v))
	var (
		best  string
		count int64 = -1
	)
	for _, id := range ids {
		if v[id] > count {
			best, count = id, v[id]
		}
	}
	return best, count
}
