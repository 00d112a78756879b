package notify

import (
	"time"

	"pollwatch/internal/results"
)

// Category groups notifications for display.
type Category string

const (
	CategorySubmission Category = "submission"
	CategoryAnomaly    Category = "anomaly"
)

// Event is a user-facing notification. Only Read ever changes after creation.
type Event struct {
	ID        string           `json:"id"`
	Category  Category         `json:"category"`
	Severity  results.Severity `json:"severity"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	UnitID    string           `json:"unit_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Read      bool             `json:"read"`
}
