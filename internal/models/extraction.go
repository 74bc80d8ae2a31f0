package models

import (
	"github.com/google/uuid"
)

// RawItem is one line item as reported by an extraction backend, before
// validation and categorization.
type RawItem struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	Discount    float64 `json:"discount"`
	Subcategory string  `json:"subcategory"`
}

// RawReceipt is the canonical intermediate representation every extraction
// backend output is normalized into. Downstream stages never see
// backend-specific shapes.
type RawReceipt struct {
	StoreName     string    `json:"store_name"`
	Date          string    `json:"purchasing_date"`
	Currency      string    `json:"currency"`
	PaymentMethod string    `json:"payment_method"`
	ReceiptNumber string    `json:"receipt_number"`
	Total         float64   `json:"total"`
	Items         []RawItem `json:"items"`
}

// ConfidenceSignals drive the strategy escalation decision. Score is the
// backend's explicit confidence when available; FieldCoverage is the
// required-field presence heuristic computed by the invoker.
type ConfidenceSignals struct {
	Score         float64
	FieldCoverage float64
	RawTextLength int
}

// ExtractionResult is the ephemeral output of one extraction attempt.
type ExtractionResult struct {
	DocumentID   uuid.UUID
	UserID       string
	StrategyUsed string
	Receipt      RawReceipt
	RawText      string
	Confidence   ConfidenceSignals
}
