package extract

import (
	"fmt"

	"receiptflow/internal/validate"
)

// analysisPrompt instructs a vision model to extract structured data from an
// Israeli receipt image. Hebrew text reads right-to-left; column layouts put
// product codes on the right edge.
func analysisPrompt() string {
	return fmt.Sprintf(`Analyze this ISRAELI receipt image (קבלה or חשבונית מס) and extract structured data.

- Hebrew text reads right-to-left
- Identify item names (שם פריט), prices (מחיר) and quantities (כמות)
- Discount rows are marked with: הנחה, מבצע, discount, or negative values
- Ignore columns containing product codes (ברקוד), SKUs (מק"ט) or item numbers
- Payment method indicators: מזומן, אשראי, CASH, CARD, VISA, MASTERCARD, ויזה, ישראכרט
- The VAT line (מע"מ) is NOT an item, skip it
- Deposit lines (פיקדון) are separate items with the "deposit" subcategory
- Total indicators: סה"כ, סיכום, סך הכל, לתשלום
- Preserve Hebrew text properly without escaping to Unicode

Available category taxonomy (use subcategory codes for items): %s

Return the following information as valid JSON ONLY, no additional text:

{
    "store_name": "name of the store or business",
    "purchasing_date": "date in YYYY-MM-DD format",
    "receipt_number": "receipt number if available",
    "payment_method": "cash|credit_card|other",
    "currency": "ISO currency code, ILS for ₪ or ש\"ח",
    "items": [
        {
            "name": "item name with Hebrew characters preserved",
            "price": 0.0,
            "quantity": 1,
            "discount": 0.0,
            "subcategory": "subcategory code from the taxonomy above"
        }
    ],
    "total": 0.0
}

Date rules: Israeli receipts use DD/MM/YYYY or DD/MM/YY. Two-digit years are
always 20XX ("14/08/25" is August 14, 2025). Output YYYY-MM-DD.

Discount rules: the "discount" field is mandatory for every item, as a
negative number or 0. The item "price" is the original price before discount.

Weighed items: a weight line below an item (e.g. "0.724") is the quantity in
kg; the price is the per-kg price shown on the item line.

Required fields that must never be null: store_name, purchasing_date,
payment_method, total. Every receipt lists at least one purchased item;
the items array must never be empty.`,
		validate.TaxonomyJSON())
}

// structuringPrompt instructs a text model to turn OCR output into the same
// JSON shape. Used by the OCR-first strategies.
func structuringPrompt(ocrText string) string {
	return fmt.Sprintf(`You are given OCR-extracted text from an ISRAELI receipt (קבלה). Structure it into JSON.

OCR Text:
%s

Available category taxonomy (use subcategory codes for items): %s

Return valid JSON ONLY in this exact shape:

{
    "store_name": "name of the store or business",
    "purchasing_date": "date in YYYY-MM-DD format",
    "receipt_number": "receipt number if available",
    "payment_method": "cash|credit_card|other",
    "currency": "ISO currency code, ILS for ₪ or ש\"ח",
    "items": [
        {
            "name": "item name",
            "price": 0.0,
            "quantity": 1,
            "discount": 0.0,
            "subcategory": "subcategory code from the taxonomy above"
        }
    ],
    "total": 0.0
}

Rules:
- Total indicators: סה"כ, סיכום, סך הכל, לתשלום, TOTAL
- Skip the VAT line (מע"מ), it is not an item
- Deposit lines (פיקדון) are separate items with the "deposit" subcategory
- Discount rows (הנחה, מבצע, negative values) go into the preceding item's
  "discount" field as a negative number; use 0 when there is none
- Dates are DD/MM/YYYY or DD/MM/YY with two-digit years meaning 20XX;
  output YYYY-MM-DD
- OCR noise: fix obvious character confusions but never invent items
- Required fields that must never be null: store_name, purchasing_date,
  payment_method, total
- The items array must never be empty; every receipt lists at least one
  purchased item`,
		ocrText, validate.TaxonomyJSON())
}
