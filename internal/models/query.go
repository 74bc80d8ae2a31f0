package models

import (
	"time"
)

// QueryIntent is the aggregation a natural-language question maps onto.
type QueryIntent string

const (
	// IntentTotal sums spending over the period.
	IntentTotal QueryIntent = "total"
	// IntentByCategory breaks spending down per item category.
	IntentByCategory QueryIntent = "by_category"
	// IntentByStore breaks spending down per store.
	IntentByStore QueryIntent = "by_store"
	// IntentCount counts receipts in the period.
	IntentCount QueryIntent = "count"
)

// QuerySpec is a planned aggregation over one user's stored receipts.
// Zero From/To mean an unbounded period on that side.
type QuerySpec struct {
	Intent   QueryIntent `json:"intent"`
	From     time.Time   `json:"from,omitempty"`
	To       time.Time   `json:"to,omitempty"`
	Category string      `json:"category,omitempty"`
}

// QueryRow is one line of a grouped aggregation.
type QueryRow struct {
	Label string  `json:"label"`
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// QueryResult is the answer delivered back to the asking user.
type QueryResult struct {
	Question    string     `json:"question"`
	Spec        QuerySpec  `json:"spec"`
	Rows        []QueryRow `json:"rows,omitempty"`
	Total       float64    `json:"total"`
	Count       int        `json:"count"`
	GeneratedAt time.Time  `json:"generated_at"`
}
