// Package validate turns a raw extraction result into a committed-ready
// receipt record: required fields, locale-aware coercion, total
// reconciliation and line item categorization.
package validate

import (
	"fmt"
	"math"
	"strings"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// dateLayouts tried in order. Israeli receipts are day-first; ISO output
// from the extraction prompt comes first.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02/01/06",
	"02.01.2006",
	"02.01.06",
	"02-01-2006",
	"2.1.2006",
	"2/1/2006",
}

// Validator applies an ordered chain of checks to one extraction result.
// Each step either repairs the draft in place or returns a classified
// failure; later steps never run after a failure.
type Validator struct {
	tolerancePct   float64
	toleranceFloor float64
	maxDateAge     time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

func NewValidator(tolerancePct, toleranceFloor float64, maxDateAge time.Duration, logger *zap.Logger) *Validator {
	return &Validator{
		tolerancePct:   tolerancePct,
		toleranceFloor: toleranceFloor,
		maxDateAge:     maxDateAge,
		now:            time.Now,
		logger:         logger,
	}
}

// draft is the mutable intermediate the validator chain works on.
type draft struct {
	raw    *models.RawReceipt
	record *models.ReceiptRecord
}

type step func(*draft) error

// Validate builds a ReceiptRecord or fails with a classified validation
// error. The input is never mutated.
func (v *Validator) Validate(res *models.ExtractionResult) (*models.ReceiptRecord, error) {
	raw := res.Receipt
	d := &draft{
		raw: &raw,
		record: &models.ReceiptRecord{
			ID:               uuid.New(),
			UserID:           res.UserID,
			SourceDocumentID: res.DocumentID,
			CreatedAt:        v.now().UTC(),
		},
	}

	steps := []step{
		v.checkRequired,
		v.coerceStoreName,
		v.coerceDate,
		v.coerceCurrency,
		v.coercePaymentMethod,
		v.coerceItems,
		v.reconcileTotal,
		v.categorize,
	}
	for _, s := range steps {
		if err := s(d); err != nil {
			return nil, err
		}
	}

	v.logger.Debug("receipt validated",
		zap.String("receipt_id", d.record.ID.String()),
		zap.String("store", d.record.StoreName),
		zap.Int("items", len(d.record.Items)),
		zap.Bool("reconciliation_flagged", d.record.ReconciliationFlagged),
	)
	return d.record, nil
}

func (v *Validator) checkRequired(d *draft) error {
	var missing []string
	if strings.TrimSpace(d.raw.StoreName) == "" {
		missing = append(missing, "store_name")
	}
	if strings.TrimSpace(d.raw.Date) == "" {
		missing = append(missing, "purchasing_date")
	}
	if d.raw.Total <= 0 {
		missing = append(missing, "total")
	}
	if len(d.raw.Items) == 0 {
		missing = append(missing, "items")
	}
	if len(missing) > 0 {
		return fault.Newf(fault.KindValidation, "validate",
			"missing required fields: %s", strings.Join(missing, ", "))
	}
	d.record.Total = d.raw.Total
	d.record.ReceiptNumber = strings.TrimSpace(d.raw.ReceiptNumber)
	return nil
}

func (v *Validator) coerceStoreName(d *draft) error {
	name := strings.TrimSpace(d.raw.StoreName)
	if len(name) > 100 {
		name = name[:100]
	}
	d.record.StoreName = name
	return nil
}

func (v *Validator) coerceDate(d *draft) error {
	parsed, err := parseReceiptDate(d.raw.Date)
	if err != nil {
		return fault.New(fault.KindValidation, "validate", err)
	}

	today := v.now().UTC().Truncate(24 * time.Hour)
	if parsed.After(today) {
		return fault.Newf(fault.KindValidation, "validate",
			"receipt date %s is in the future", parsed.Format("2006-01-02"))
	}
	if parsed.Before(today.Add(-v.maxDateAge)) {
		return fault.Newf(fault.KindValidation, "validate",
			"receipt date %s is older than the accepted window", parsed.Format("2006-01-02"))
	}
	d.record.Date = parsed
	return nil
}

func parseReceiptDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// two-digit years are always this century
			if t.Year() < 100 {
				t = t.AddDate(2000, 0, 0)
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

// coerceCurrency normalizes to ISO codes. Hebrew shekel markers and the
// empty field all resolve to ILS, the domain default.
func (v *Validator) coerceCurrency(d *draft) error {
	cur := strings.TrimSpace(d.raw.Currency)
	switch strings.ToUpper(cur) {
	case "", "₪", "ILS", "NIS", "SHEKEL":
		d.record.Currency = "ILS"
	case "ש\"ח", "שח", "ש״ח":
		d.record.Currency = "ILS"
	default:
		if len(cur) == 3 {
			d.record.Currency = strings.ToUpper(cur)
		} else {
			d.record.Currency = "ILS"
		}
	}
	return nil
}

func (v *Validator) coercePaymentMethod(d *draft) error {
	method := strings.ToLower(strings.TrimSpace(d.raw.PaymentMethod))
	switch method {
	case "cash", "מזומן", "מזומנים":
		d.record.PaymentMethod = models.PaymentCash
	case "credit_card", "credit", "card", "visa", "mastercard",
		"אשראי", "כרטיס אשראי", "ויזה", "ישראכרט", "מאסטרקארד":
		d.record.PaymentMethod = models.PaymentCreditCard
	case "other", "שיק", "העברה בנקאית", "ביט", "bit", "":
		d.record.PaymentMethod = models.PaymentOther
	default:
		return fault.Newf(fault.KindValidation, "validate",
			"unrecognized payment method %q", d.raw.PaymentMethod)
	}
	return nil
}

// coerceItems cleans names, defaults quantities and auto-corrects positive
// discounts to negative.
func (v *Validator) coerceItems(d *draft) error {
	items := make([]models.LineItem, 0, len(d.raw.Items))
	for i, it := range d.raw.Items {
		name := strings.TrimSpace(it.Name)
		if name == "" {
			return fault.Newf(fault.KindValidation, "validate", "item %d has an empty name", i)
		}
		if it.Price < 0 {
			return fault.Newf(fault.KindValidation, "validate",
				"item %q has a negative price %.2f", name, it.Price)
		}

		quantity := it.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		discount := it.Discount
		if discount > 0 {
			v.logger.Warn("discount auto-corrected to negative",
				zap.String("item", name),
				zap.Float64("reported", discount),
			)
			discount = -discount
		}

		items = append(items, models.LineItem{
			ID:          uuid.New(),
			Name:        name,
			Price:       it.Price,
			Quantity:    quantity,
			Discount:    discount,
			Subcategory: it.Subcategory,
		})
	}
	d.record.Items = items
	return nil
}

// reconcileTotal compares the stated total with the summed line items.
// Mismatch outside tolerance flags the record rather than rejecting it;
// the tolerance is the larger of the relative and absolute bounds.
func (v *Validator) reconcileTotal(d *draft) error {
	calculated := d.record.ItemsTotal()
	diff := math.Abs(calculated - d.record.Total)

	tolerance := d.record.Total * v.tolerancePct / 100
	if tolerance < v.toleranceFloor {
		tolerance = v.toleranceFloor
	}

	if diff > tolerance {
		d.record.ReconciliationFlagged = true
		v.logger.Warn("total reconciliation outside tolerance, record flagged",
			zap.Float64("stated", d.record.Total),
			zap.Float64("calculated", calculated),
			zap.Float64("tolerance", tolerance),
		)
	}
	return nil
}

// categorize resolves every line item to taxonomy codes; no item is ever
// left without a category.
func (v *Validator) categorize(d *draft) error {
	for i := range d.record.Items {
		item := &d.record.Items[i]
		item.Subcategory = ResolveSubcategory(item.Subcategory, item.Name)
		item.Category = CategoryOf(item.Subcategory)
	}
	return nil
}
