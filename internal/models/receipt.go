package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentMethod string

const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCreditCard PaymentMethod = "credit_card"
	PaymentOther      PaymentMethod = "other"
)

// LineItem is one validated, categorized receipt line.
type LineItem struct {
	ID          uuid.UUID `db:"id"`
	Name        string    `db:"name"`
	Price       float64   `db:"price"`
	Quantity    float64   `db:"quantity"`
	Discount    float64   `db:"discount"` // non-positive
	Category    string    `db:"category"`
	Subcategory string    `db:"subcategory"`
}

// Total is the effective line total after quantity and discount.
func (i LineItem) Total() float64 {
	return i.Price*i.Quantity + i.Discount
}

// ReceiptRecord is the final structured receipt. Immutable after commit
// except for category corrections.
type ReceiptRecord struct {
	ID                    uuid.UUID     `db:"id"`
	UserID                string        `db:"user_id"`
	StoreName             string        `db:"store_name"`
	Date                  time.Time     `db:"purchasing_date"`
	Currency              string        `db:"currency"`
	PaymentMethod         PaymentMethod `db:"payment_method"`
	ReceiptNumber         string        `db:"receipt_number"`
	Items                 []LineItem
	Total                 float64   `db:"total"`
	ReconciliationFlagged bool      `db:"reconciliation_flagged"`
	SourceDocumentID      uuid.UUID `db:"source_document_id"`
	CreatedAt             time.Time `db:"created_at"`
}

// ItemsTotal sums the effective line totals.
func (r *ReceiptRecord) ItemsTotal() float64 {
	var sum float64
	for _, item := range r.Items {
		sum += item.Total()
	}
	return sum
}
