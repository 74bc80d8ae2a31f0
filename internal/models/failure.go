package models

import (
	"time"

	"github.com/google/uuid"
)

// FailureReport is delivered to the outbound notifier and the dead-letter
// sink when a Document reaches a terminal failure. Exactly one report is
// produced per failed Document.
type FailureReport struct {
	DocumentID uuid.UUID
	UserID     string
	Kind       string
	Detail     string
	Strategy   string // last strategy attempted, empty if failure predates extraction
	OccurredAt time.Time
}
