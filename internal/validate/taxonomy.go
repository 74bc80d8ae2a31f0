package validate

import (
	"encoding/json"
	"strings"
	"sync"
)

// Category and subcategory codes for Israeli grocery and household receipts.
// Codes are stable identifiers; Hebrew names are for user-facing output.

type Subcategory struct {
	Code       string   `json:"code"`
	HebrewName string   `json:"hebrew_name"`
	Aliases    []string `json:"-"`
	Keywords   []string `json:"-"`
}

type Category struct {
	Code          string        `json:"code"`
	HebrewName    string        `json:"hebrew_name"`
	Subcategories []Subcategory `json:"subcategories"`
}

type Taxonomy struct {
	Categories []Category `json:"categories"`
}

const (
	Uncategorized = "uncategorized"
)

var taxonomy = Taxonomy{
	Categories: []Category{
		{
			Code: "food", HebrewName: "מזון",
			Subcategories: []Subcategory{
				{Code: "fruits_vegetables", HebrewName: "פירות וירקות",
					Aliases:  []string{"produce", "vegetables", "fruits"},
					Keywords: []string{"עגבני", "מלפפון", "בננה", "תפוח", "תפוז", "בצל", "גזר", "פלפל", "אבוקדו", "לימון"}},
				{Code: "dairy_eggs", HebrewName: "מוצרי חלב וביצים",
					Aliases:  []string{"dairy", "milk", "eggs"},
					Keywords: []string{"חלב", "גבינה", "קוטג", "יוגורט", "ביצים", "שמנת", "חמאה", "לבן"}},
				{Code: "meat_poultry", HebrewName: "בשר ועוף",
					Aliases:  []string{"meat", "poultry", "chicken"},
					Keywords: []string{"עוף", "חזה", "בשר", "פרגית", "כבד", "הודו", "טחון", "שניצל"}},
				{Code: "frozen_meat_poultry", HebrewName: "בשר ועוף קפוא",
					Aliases:  []string{"frozen_meat"},
					Keywords: []string{"קפוא"}},
				{Code: "processed_meats_sausages", HebrewName: "נקניקים ומעובדים",
					Aliases:  []string{"sausages", "deli"},
					Keywords: []string{"נקניק", "פסטרמה", "סלמי", "קבנוס"}},
				{Code: "fish", HebrewName: "דגים",
					Aliases:  []string{"seafood"},
					Keywords: []string{"דג", "סלמון", "טונה", "אמנון"}},
				{Code: "bread_bakery", HebrewName: "לחם ומאפים",
					Aliases:  []string{"bread", "bakery"},
					Keywords: []string{"לחם", "פיתה", "לחמני", "חלה", "בגט", "מאפה"}},
				{Code: "dry_goods_pasta", HebrewName: "מוצרים יבשים",
					Aliases:  []string{"pantry", "dry_goods", "pasta", "rice"},
					Keywords: []string{"אורז", "פסטה", "קמח", "סוכר", "קטניות", "עדשים", "פתיתים", "קוסקוס"}},
				{Code: "canned_preserved", HebrewName: "שימורים",
					Aliases:  []string{"canned"},
					Keywords: []string{"שימור", "טחינה", "חומוס", "רסק"}},
				{Code: "snacks_sweets", HebrewName: "חטיפים ומתוקים",
					Aliases:  []string{"snacks", "sweets", "candy"},
					Keywords: []string{"חטיף", "שוקולד", "ביסלי", "במבה", "עוגי", "ופל", "מסטיק", "סוכרי"}},
				{Code: "beverages", HebrewName: "משקאות",
					Aliases:  []string{"drinks", "soda", "juice"},
					Keywords: []string{"מיץ", "קולה", "סודה", "מים", "משקה", "בירה", "יין", "קפה", "תה"}},
				{Code: "frozen_food", HebrewName: "מזון קפוא",
					Aliases:  []string{"frozen"},
					Keywords: []string{"גלידה", "פיצה קפואה", "ירקות קפואים"}},
				{Code: "spices_condiments", HebrewName: "תבלינים ורטבים",
					Aliases:  []string{"spices", "sauces"},
					Keywords: []string{"תבלין", "מלח", "פלפל שחור", "רוטב", "קטשופ", "מיונז", "שמן", "חומץ"}},
			},
		},
		{
			Code: "household", HebrewName: "משק בית",
			Subcategories: []Subcategory{
				{Code: "cleaning_supplies", HebrewName: "חומרי ניקוי",
					Aliases:  []string{"cleaning", "detergent"},
					Keywords: []string{"אקונומיקה", "סבון", "ניקוי", "מרכך כביסה", "אבקת כביסה", "נוזל כלים", "מטליות"}},
				{Code: "paper_disposables", HebrewName: "נייר וחד פעמי",
					Aliases:  []string{"paper", "disposables"},
					Keywords: []string{"נייר טואלט", "מגבונים", "מפיות", "כוסות חד", "צלחות חד", "שקיות"}},
				{Code: "kitchenware", HebrewName: "כלי מטבח",
					Aliases:  []string{"kitchen"},
					Keywords: []string{"סיר", "מחבת", "כלי מטבח"}},
			},
		},
		{
			Code: "personal_care", HebrewName: "טיפוח אישי",
			Subcategories: []Subcategory{
				{Code: "hygiene", HebrewName: "היגיינה",
					Aliases:  []string{"toiletries"},
					Keywords: []string{"שמפו", "משחת שיניים", "דאודורנט", "סבון גוף", "מברשת"}},
				{Code: "cosmetics", HebrewName: "קוסמטיקה",
					Aliases:  []string{"makeup", "beauty"},
					Keywords: []string{"קרם", "איפור", "בושם"}},
				{Code: "pharmacy", HebrewName: "בית מרקחת",
					Aliases:  []string{"medicine", "drugs"},
					Keywords: []string{"אקמול", "נורופן", "ויטמין", "תרופ"}},
			},
		},
		{
			Code: "baby_kids", HebrewName: "תינוקות וילדים",
			Subcategories: []Subcategory{
				{Code: "baby_care", HebrewName: "טיפוח תינוקות",
					Aliases:  []string{"diapers", "baby"},
					Keywords: []string{"חיתול", "מטרנה", "סימילאק", "תינוק"}},
			},
		},
		{
			Code: "transport", HebrewName: "תחבורה",
			Subcategories: []Subcategory{
				{Code: "fuel_electric", HebrewName: "דלק וחשמל",
					Aliases:  []string{"fuel", "gas", "petrol", "charging"},
					Keywords: []string{"דלק", "בנזין", "סולר", "טעינה"}},
				{Code: "parking", HebrewName: "חניה",
					Aliases:  []string{"parking_fee"},
					Keywords: []string{"חניה", "חניון"}},
			},
		},
		{
			Code: "other", HebrewName: "אחר",
			Subcategories: []Subcategory{
				{Code: "deposit", HebrewName: "פיקדון",
					Aliases:  []string{"bottle_deposit"},
					Keywords: []string{"פיקדון"}},
				{Code: "pets", HebrewName: "חיות מחמד",
					Aliases:  []string{"pet_food"},
					Keywords: []string{"חתול", "כלב", "חיות"}},
				{Code: Uncategorized, HebrewName: "ללא קטגוריה"},
			},
		},
	},
}

var (
	subToCat     map[string]string
	aliasToSub   map[string]string
	taxonomyOnce sync.Once
	taxonomyJSON string
)

func buildIndexes() {
	subToCat = make(map[string]string)
	aliasToSub = make(map[string]string)
	for _, cat := range taxonomy.Categories {
		for _, sub := range cat.Subcategories {
			subToCat[sub.Code] = cat.Code
			aliasToSub[sub.Code] = sub.Code
			for _, a := range sub.Aliases {
				aliasToSub[a] = sub.Code
			}
		}
	}
	b, err := json.Marshal(taxonomy)
	if err != nil {
		panic(err) // static data, marshal cannot fail
	}
	taxonomyJSON = string(b)
}

// TaxonomyJSON returns the taxonomy serialized for embedding into prompts.
func TaxonomyJSON() string {
	taxonomyOnce.Do(buildIndexes)
	return taxonomyJSON
}

// CategoryCodes returns the top-level category codes, comma separated, for
// embedding into prompts.
func CategoryCodes() string {
	codes := make([]string, 0, len(taxonomy.Categories))
	for _, cat := range taxonomy.Categories {
		codes = append(codes, cat.Code)
	}
	return strings.Join(codes, ", ")
}

// CategoryOf maps a subcategory code to its parent category. Unknown codes
// map to "other".
func CategoryOf(subcategory string) string {
	taxonomyOnce.Do(buildIndexes)
	if cat, ok := subToCat[subcategory]; ok {
		return cat
	}
	return "other"
}

// ResolveSubcategory normalizes a model-reported subcategory to a canonical
// code: exact code match first, then alias, then keyword scan over the item
// name, then Uncategorized.
func ResolveSubcategory(reported, itemName string) string {
	taxonomyOnce.Do(buildIndexes)

	key := strings.ToLower(strings.TrimSpace(reported))
	if sub, ok := aliasToSub[key]; ok {
		return sub
	}
	// strip separators the model sometimes invents ("dairy & eggs")
	key = strings.NewReplacer(" ", "_", "-", "_", "&", "", "__", "_").Replace(key)
	if sub, ok := aliasToSub[key]; ok {
		return sub
	}

	if sub := matchKeywords(itemName); sub != "" {
		return sub
	}
	return Uncategorized
}

func matchKeywords(itemName string) string {
	name := strings.ToLower(itemName)
	if name == "" {
		return ""
	}
	for _, cat := range taxonomy.Categories {
		for _, sub := range cat.Subcategories {
			for _, kw := range sub.Keywords {
				if strings.Contains(name, kw) {
					return sub.Code
				}
			}
		}
	}
	return ""
}
