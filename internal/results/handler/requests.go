package handler

import (
	"errors"
	"strings"
	"time"

	"pollwatch/internal/results"
	dErrors "pollwatch/pkg/domain-errors"
	"pollwatch/pkg/platform/httputil"
)

// SubmitRequest is the HTTP request body for POST /results.
// Negative counts are left to the rules engine; the upper caps mirror
// registry.MaxVoterCount and results.MaxCandidates.
type SubmitRequest struct {
	UnitID           string           `json:"unit_id" validate:"required,max=64"`
	AccreditedVoters *int64           `json:"accredited_voters" validate:"required,max=1000000000"`
	Votes            map[string]int64 `json:"votes" validate:"required,max=1000,dive,keys,required,max=64,endkeys,max=1000000000"`
	SubmittedAt      *time.Time       `json:"submitted_at"`
	ProofReference   string           `json:"proof_reference" validate:"max=256"`
}

// Validate normalizes and checks the request shape.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *SubmitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.UnitID = strings.TrimSpace(r.UnitID)
	r.ProofReference = strings.TrimSpace(r.ProofReference)

	if err := httputil.ValidateStruct(r); err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return dErrors.New(dErrors.CodeMalformedRecord, de.Message)
		}
		return dErrors.Wrap(err, dErrors.CodeMalformedRecord, "malformed result record")
	}
	return nil
}

// DecodeError reports an undecodable body as a malformed record.
// Implements httputil.DecodeErrorMapper.
func (r *SubmitRequest) DecodeError(err error) error {
	return dErrors.Wrap(err, dErrors.CodeMalformedRecord, "result record is not valid JSON of the expected shape")
}

// ToSubmission converts a validated request into a pipeline submission.
func (r *SubmitRequest) ToSubmission() results.Submission {
	sub := results.Submission{
		UnitID:         r.UnitID,
		Votes:          results.Votes(r.Votes).Clone(),
		ProofReference: r.ProofReference,
	}
	if r.AccreditedVoters != nil {
		sub.AccreditedVoters = *r.AccreditedVoters
	}
	if r.SubmittedAt != nil {
		sub.SubmittedAt = *r.SubmittedAt
	}
	return sub
}
