package handler

import "pollwatch/internal/results"

// SubmitResponse is returned for an accepted submission.
type SubmitResponse struct {
	UnitID   string            `json:"unit_id"`
	Status   results.Status    `json:"status"`
	Findings []results.Finding `json:"findings"`
	Version  int64             `json:"version"`
}

// SnapshotResponse adds derived statistics to the aggregate.
type SnapshotResponse struct {
	results.Snapshot
	Turnout float64 `json:"turnout"`
}

type ListResponse struct {
	Results []*results.ResultRecord `json:"results"`
	Count   int                     `json:"count"`
}

type FindingsResponse struct {
	Findings []results.Finding `json:"findings"`
}

func FromOutcome(out *results.Outcome) SubmitResponse {
	resp := SubmitResponse{Status: out.Status, Findings: out.Findings}
	if out.Record != nil {
		resp.UnitID = out.Record.UnitID
		resp.Version = out.Record.Version
	}
	if resp.Findings == nil {
		resp.Findings = []results.Finding{}
	}
	return resp
}

func FromSnapshot(s results.Snapshot) SnapshotResponse {
	return SnapshotResponse{Snapshot: s, Turnout: s.Turnout()}
}

func FromRecords(records []*results.ResultRecord) ListResponse {
	if records == nil {
		records = []*results.ResultRecord{}
	}
	return ListResponse{Results: records, Count: len(records)}
}
