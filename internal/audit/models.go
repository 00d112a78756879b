package audit

import "time"

// Category classifies audit events for retention and routing.
type Category string

const (
	// CategoryCompliance covers decisions an election authority must be able
	// to reconstruct: accepted submissions and operator reviews.
	CategoryCompliance Category = "compliance"
	// CategoryOperations covers refused submissions and on-demand analysis.
	CategoryOperations Category = "operations"
)

// Action names what happened.
type Action string

const (
	ActionResultSubmitted Action = "result_submitted"
	ActionResultRefused   Action = "result_refused"
	ActionResultVerified  Action = "result_verified"
	ActionResultRejected  Action = "result_rejected"
)

var actionCategories = map[Action]Category{
	ActionResultSubmitted: CategoryCompliance,
	ActionResultVerified:  CategoryCompliance,
	ActionResultRejected:  CategoryCompliance,
	ActionResultRefused:   CategoryOperations,
}

// Category returns the category of a; unknown actions are operations.
func (a Action) Category() Category {
	if c, ok := actionCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Event is one audit trail entry. Status is the record status after the
// action; Reason carries the error code for refused submissions.
type Event struct {
	ID           string    `json:"id"`
	Category     Category  `json:"category"`
	Action       Action    `json:"action"`
	UnitID       string    `json:"unit_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OperatorID   string    `json:"operator_id,omitempty"`
	OperatorRole string    `json:"operator_role,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Query selects events newest first. Zero Limit means the store default.
type Query struct {
	UnitID string
	Limit  int
}
