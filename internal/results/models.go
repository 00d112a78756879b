package results

import (
	"maps"
	"slices"
	"time"
)

// Status is the review state of a unit's current result record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusFlagged  Status = "flagged"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPending, StatusFlagged, StatusVerified, StatusRejected}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return slices.Contains(Statuses, s)
}

// IsTerminal reports whether an operator has already decided the record.
// Only a new submission moves a record out of a terminal status.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusRejected
}

// CanTransitionTo reports whether an operator action may move s to next.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending, StatusFlagged:
		return next == StatusVerified || next == StatusRejected
	default:
		return false
	}
}

// Votes maps candidate id to vote count. A missing key means zero votes.
type Votes map[string]int64

// Get returns the count for a candidate, zero when absent.
func (v Votes) Get(candidateID string) int64 {
	return v[candidateID]
}

// Total sums every count. Evaluate bounds the counts before any total is
// taken, so the sum cannot wrap.
func (v Votes) Total() int64 {
	var total int64
	for _, n := range v {
		total += n
	}
	return total
}

// Clone returns an independent copy; a nil map clones to an empty one.
func (v Votes) Clone() Votes {
	out := make(Votes, len(v))
	maps.Copy(out, v)
	return out
}

// ResultRecord is the current submission for a polling unit.
// RegisteredVoters and Region are copied from the registry at ingestion so the
// aggregate can be rebuilt from records alone.
type ResultRecord struct {
	UnitID           string     `json:"unit_id"`
	Region           string     `json:"region"`
	RegisteredVoters int64      `json:"registered_voters"`
	AccreditedVoters int64      `json:"accredited_voters"`
	Votes            Votes      `json:"votes"`
	Status           Status     `json:"status"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	ProofReference   string     `json:"proof_reference,omitempty"`
	ReviewedBy       string     `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	Version          int64      `json:"version"`
}

// Clone returns a deep copy.
func (r *ResultRecord) Clone() *ResultRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Votes = r.Votes.Clone()
	if r.ReviewedAt != nil {
		at := *r.ReviewedAt
		out.ReviewedAt = &at
	}
	return &out
}

// Severity ranks a finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Kind tags the rule that produced a finding.
type Kind string

const (
	KindOverAccreditation       Kind = "OverAccreditation"
	KindOverVoting              Kind = "OverVoting"
	KindExcessiveTurnout        Kind = "ExcessiveTurnout"
	KindDominantPartyShare      Kind = "DominantPartyShare"
	KindResubmissionAfterReview Kind = "ResubmissionAfterReview"
	// KindNarrative marks findings returned by the insight gateway.
	KindNarrative Kind = "Narrative"
)

// Source says who produced a finding.
type Source string

const (
	SourceRules   Source = "rules"
	SourceInsight Source = "insight"
)

// Finding is an observation attached to a record. It is data, not an error.
type Finding struct {
	UnitID         string    `json:"unit_id"`
	UnitName       string    `json:"unit_name,omitempty"`
	Severity       Severity  `json:"severity"`
	Kind           Kind      `json:"kind"`
	Description    string    `json:"description"`
	Recommendation string    `json:"recommendation,omitempty"`
	Source         Source    `json:"source"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Verdict is the rules engine output for one candidate record.
type Verdict struct {
	Accepted bool
	Status   Status
	Findings []Finding
}

// Submission is an incoming result for a unit, before rules and storage.
type Submission struct {
	UnitID           string
	AccreditedVoters int64
	Votes            Votes
	SubmittedAt      time.Time
	ProofReference   string
}

// Outcome is returned to the submitter of an accepted record.
type Outcome struct {
	Status   Status    `json:"status"`
	Findings []Finding `json:"findings"`
	Record   *ResultRecord
}

// Filter narrows record listings. Empty fields match everything.
type Filter struct {
	Status Status
	Region string
}

// Matches reports whether rec passes the filter.
func (f Filter) Matches(rec *ResultRecord) bool {
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Region != "" && rec.Region != f.Region {
		return false
	}
	return true
}

// Snapshot is a point-in-time view of the running aggregates.
type Snapshot struct {
	TotalRegistered  int64            `json:"total_registered"`
	TotalAccredited  int64            `json:"total_accredited"`
	VotesByCandidate map[string]int64 `json:"votes_by_candidate"`
	CountByStatus    map[Status]int64 `json:"count_by_status"`
	CountByRegion    map[string]int64 `json:"count_by_region"`
	ReportedUnits    int64            `json:"reported_units"`
}

// Turnout is accredited over registered across reporting units, zero when
// nothing is registered.
func (s Snapshot) Turnout() float64 {
	if s.TotalRegistered == 0 {
		return 0
	}
	return float64(s.TotalAccredited) / float64(s.TotalRegistered)
}

// Equal compares every aggregate exactly.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.TotalRegistered == o.TotalRegistered &&
		s.TotalAccredited == o.TotalAccredited &&
		s.ReportedUnits == o.ReportedUnits &&
		maps.Equal(s.VotesByCandidate, o.VotesByCandidate) &&
		maps.Equal(s.CountByStatus, o.CountByStatus) &&
		maps.Equal(s.CountByRegion, o.CountByRegion)
}

// Consistency compares the running aggregate with a full recompute.
type Consistency struct {
	Incremental Snapshot `json:"incremental"`
	Recomputed  Snapshot `json:"recomputed"`
	Consistent  bool     `json:"consistent"`
}
