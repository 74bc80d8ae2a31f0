package validate

import (
	"strings"
	"testing"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestValidator() *Validator {
	v := NewValidator(2.5, 0.10, 180*24*time.Hour, zap.NewNop())
	v.now = func() time.Time {
		return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	return v
}

func result(raw models.RawReceipt) *models.ExtractionResult {
	return &models.ExtractionResult{
		DocumentID:   uuid.New(),
		UserID:       "user-1",
		StrategyUsed: "llm_direct",
		Receipt:      raw,
	}
}

func validRaw() models.RawReceipt {
	return models.RawReceipt{
		StoreName:     "רמי לוי",
		Date:          "2026-08-14",
		Currency:      "₪",
		PaymentMethod: "credit_card",
		Total:         18.40,
		Items: []models.RawItem{
			{Name: "חלב 3%", Price: 6.20, Quantity: 2, Subcategory: "dairy_eggs"},
			{Name: "לחם אחיד", Price: 6.00, Quantity: 1, Subcategory: "bread_bakery"},
		},
	}
}

func TestValidateHappyPath(t *testing.T) {
	v := newTestValidator()
	rec, err := v.Validate(result(validRaw()))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rec.StoreName != "רמי לוי" {
		t.Errorf("store name: %q", rec.StoreName)
	}
	if rec.Currency != "ILS" {
		t.Errorf("currency: got %q, want ILS", rec.Currency)
	}
	if rec.PaymentMethod != models.PaymentCreditCard {
		t.Errorf("payment method: %s", rec.PaymentMethod)
	}
	if rec.Date.Format("2006-01-02") != "2026-08-14" {
		t.Errorf("date: %s", rec.Date)
	}
	if rec.ReconciliationFlagged {
		t.Error("matching total must not be flagged")
	}
	for _, item := range rec.Items {
		if item.Category == "" {
			t.Errorf("item %q left without category", item.Name)
		}
	}
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.RawReceipt)
		want   string
	}{
		{"no store", func(r *models.RawReceipt) { r.StoreName = " " }, "store_name"},
		{"no date", func(r *models.RawReceipt) { r.Date = "" }, "purchasing_date"},
		{"no total", func(r *models.RawReceipt) { r.Total = 0 }, "total"},
		{"no items", func(r *models.RawReceipt) { r.Items = nil }, "items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(&raw)
			_, err := newTestValidator().Validate(result(raw))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if kind := fault.KindOf(err); kind != fault.KindValidation {
				t.Errorf("kind: got %s, want validation", kind)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name %q", err, tt.want)
			}
		})
	}
}

func TestValidateDateFormats(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-08-14", "2026-08-14"},
		{"14/08/2026", "2026-08-14"},
		{"14/08/26", "2026-08-14"}, // two-digit year is 20XX
		{"14.08.2026", "2026-08-14"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			raw := validRaw()
			raw.Date = tt.in
			rec, err := newTestValidator().Validate(result(raw))
			if err != nil {
				t.Fatalf("Validate(%s): %v", tt.in, err)
			}
			if got := rec.Date.Format("2006-01-02"); got != tt.want {
				t.Errorf("date: got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateDateBounds(t *testing.T) {
	raw := validRaw()
	raw.Date = "2026-09-15" // after the fixed test clock
	if _, err := newTestValidator().Validate(result(raw)); err == nil {
		t.Error("future date accepted")
	}

	raw = validRaw()
	raw.Date = "2025-12-01" // beyond the 180 day window
	if _, err := newTestValidator().Validate(result(raw)); err == nil {
		t.Error("stale date accepted")
	}

	raw = validRaw()
	raw.Date = "שבת" // not a date
	if _, err := newTestValidator().Validate(result(raw)); err == nil {
		t.Error("unparseable date accepted")
	}
}

func TestValidatePaymentAliases(t *testing.T) {
	tests := []struct {
		in   string
		want models.PaymentMethod
	}{
		{"cash", models.PaymentCash},
		{"מזומן", models.PaymentCash},
		{"אשראי", models.PaymentCreditCard},
		{"VISA", models.PaymentCreditCard},
		{"ביט", models.PaymentOther},
		{"", models.PaymentOther},
	}

	for _, tt := range tests {
		raw := validRaw()
		raw.PaymentMethod = tt.in
		rec, err := newTestValidator().Validate(result(raw))
		if err != nil {
			t.Fatalf("Validate(%q): %v", tt.in, err)
		}
		if rec.PaymentMethod != tt.want {
			t.Errorf("payment %q: got %s, want %s", tt.in, rec.PaymentMethod, tt.want)
		}
	}

	raw := validRaw()
	raw.PaymentMethod = "bitcoin"
	if _, err := newTestValidator().Validate(result(raw)); err == nil {
		t.Error("unknown payment method accepted")
	}
}

func TestValidateDiscountAutoCorrect(t *testing.T) {
	raw := validRaw()
	raw.Items[0].Discount = 2.50 // reported positive
	raw.Total = 15.90
	rec, err := newTestValidator().Validate(result(raw))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rec.Items[0].Discount != -2.50 {
		t.Errorf("discount: got %.2f, want -2.50", rec.Items[0].Discount)
	}
	if rec.ReconciliationFlagged {
		t.Error("corrected discount should reconcile")
	}
}

func TestValidateReconciliationTolerance(t *testing.T) {
	// Items sum to 18.40. Within 2.5% stays unflagged, outside is flagged
	// but still accepted.
	raw := validRaw()
	raw.Total = 18.65 // ~1.4% off
	rec, err := newTestValidator().Validate(result(raw))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rec.ReconciliationFlagged {
		t.Error("mismatch within tolerance flagged")
	}

	raw = validRaw()
	raw.Total = 25.00
	rec, err = newTestValidator().Validate(result(raw))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !rec.ReconciliationFlagged {
		t.Error("mismatch outside tolerance not flagged")
	}
}

func TestValidateQuantityDefaultsToOne(t *testing.T) {
	raw := validRaw()
	raw.Items[0].Quantity = 0
	raw.Total = 12.20
	rec, err := newTestValidator().Validate(result(raw))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if rec.Items[0].Quantity != 1 {
		t.Errorf("quantity: got %f, want 1", rec.Items[0].Quantity)
	}
}

func TestCategorization(t *testing.T) {
	tests := []struct {
		name     string
		reported string
		itemName string
		wantSub  string
		wantCat  string
	}{
		{"exact code", "dairy_eggs", "חלב", "dairy_eggs", "food"},
		{"alias", "dairy", "חלב", "dairy_eggs", "food"},
		{"keyword fallback", "nonsense", "עגבניות שרי", "fruits_vegetables", "food"},
		{"hebrew keyword cleaning", "", "נוזל כלים פיירי", "cleaning_supplies", "household"},
		{"deposit", "deposit", "פיקדון בקבוקים", "deposit", "other"},
		{"nothing matches", "", "xyzzy", Uncategorized, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := ResolveSubcategory(tt.reported, tt.itemName)
			if sub != tt.wantSub {
				t.Errorf("subcategory: got %q, want %q", sub, tt.wantSub)
			}
			if cat := CategoryOf(sub); cat != tt.wantCat {
				t.Errorf("category: got %q, want %q", cat, tt.wantCat)
			}
		})
	}
}
