// Package insight delegates anomaly narration and report writing to an
// external text-generation service. Every call degrades to an empty result
// or a fixed message; nothing here can fail ingestion.
package insight

import (
	"context"

	"pollwatch/internal/registry"
	"pollwatch/internal/results"
)

// UnavailableMessage is returned instead of a summary when the gateway
// cannot produce one.
const UnavailableMessage = "AI Service Unavailable."

// UnitData is the simplified per-unit view sent to the gateway.
type UnitData struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Registered int64         `json:"registered"`
	Accredited int64         `json:"accredited"`
	Votes      results.Votes `json:"votes"`
}

// Report is one anomaly narrated by the gateway.
type Report struct {
	UnitID         string `json:"unitId" validate:"required"`
	UnitName       string `json:"unitName" validate:"required"`
	Severity       string `json:"severity" validate:"required,oneof=high medium low"`
	Description    string `json:"description" validate:"required"`
	Recommendation string `json:"recommendation" validate:"required"`
}

// SummaryInput is what the executive summary is written from.
type SummaryInput struct {
	Snapshot  results.Snapshot  `json:"statistics"`
	Turnout   float64           `json:"turnout"`
	Incidents []results.Finding `json:"recent_incidents"`
}

// Gateway is the external collaborator contract.
type Gateway interface {
	AnalyzeAnomalies(ctx context.Context, units []UnitData) ([]Report, error)
	ExecutiveSummary(ctx context.Context, in SummaryInput) (string, error)
}

// FromRecord builds the gateway view of a stored record.
func FromRecord(rec *results.ResultRecord, unit registry.PollingUnit) UnitData {
	return UnitData{
		ID:         rec.UnitID,
		Name:       unit.Name,
		Registered: rec.RegisteredVoters,
		Accredited: rec.AccreditedVoters,
		Votes:      rec.Votes.Clone(),
	}
}

// ToFinding converts a narrated report into a supplementary finding.
func (r Report) ToFinding() results.Finding {
	return results.Finding{
		UnitID:         r.UnitID,
		UnitName:       r.UnitName,
		Severity:       results.Severity(r.Severity),
		Kind:           results.KindNarrative,
		Description:    r.Description,
		Recommendation: r.Recommendation,
		Source:         results.SourceInsight,
	}
}
