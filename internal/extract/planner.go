package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	"receiptflow/internal/validate"
)

// QueryPlanner maps a natural-language question about stored receipts onto
// an aggregation spec. Both LLM backends implement it.
type QueryPlanner interface {
	PlanQuery(ctx context.Context, question string) (models.QuerySpec, error)
}

// planEnvelope is the wire shape the planning prompt asks for. Dates come
// back as strings; decodePlan parses them.
type planEnvelope struct {
	Intent   string `json:"intent"`
	From     string `json:"from"`
	To       string `json:"to"`
	Category string `json:"category"`
}

func planningPrompt(question string) string {
	return fmt.Sprintf(`You plan aggregation queries over a user's stored receipts. The question may be in Hebrew or English.

Question: %s

Today's date: %s

Pick exactly one intent:
- "total": total spending over a period ("כמה הוצאתי החודש", "how much did I spend")
- "by_category": spending broken down per category ("על מה הוצאתי", "פירוט לפי קטגוריה")
- "by_store": spending broken down per store ("באיזה חנויות קניתי")
- "count": number of receipts ("כמה קבלות שמורות לי")

Category codes, when the question names one: %s

Return valid JSON ONLY in this exact shape:

{
    "intent": "total|by_category|by_store|count",
    "from": "YYYY-MM-DD or empty when the question names no period start",
    "to": "YYYY-MM-DD or empty",
    "category": "category code or empty"
}

Period rules: "החודש" / "this month" starts on the first of the current
month; "השבוע" / "this week" starts on the last Sunday; a bare month name
means that month of the current year. No period in the question means empty
from and to.`, question, time.Now().UTC().Format("2006-01-02"), validate.CategoryCodes())
}

// decodePlan parses the planner response. Malformed output is a recoverable
// failure; unknown intents degrade to a plain total so a fuzzy question
// still gets an answer.
func decodePlan(content string) (models.QuerySpec, error) {
	jsonStr, ok := sliceJSONObject(content)
	if !ok {
		return models.QuerySpec{}, fault.Newf(fault.KindRecoverableExtraction, "query_plan",
			"no JSON object in planner response (%d bytes)", len(content))
	}

	var env planEnvelope
	if err := json.Unmarshal([]byte(jsonStr), &env); err != nil {
		return models.QuerySpec{}, fault.New(fault.KindRecoverableExtraction, "query_plan",
			fmt.Errorf("parse planner response: %w", err))
	}

	spec := models.QuerySpec{Category: strings.TrimSpace(env.Category)}
	switch models.QueryIntent(env.Intent) {
	case models.IntentTotal, models.IntentByCategory, models.IntentByStore, models.IntentCount:
		spec.Intent = models.QueryIntent(env.Intent)
	default:
		spec.Intent = models.IntentTotal
	}

	var err error
	if spec.From, err = parsePlanDate(env.From); err != nil {
		return models.QuerySpec{}, err
	}
	if spec.To, err = parsePlanDate(env.To); err != nil {
		return models.QuerySpec{}, err
	}
	if !spec.From.IsZero() && !spec.To.IsZero() && spec.To.Before(spec.From) {
		spec.From, spec.To = spec.To, spec.From
	}
	return spec, nil
}

func parsePlanDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fault.New(fault.KindRecoverableExtraction, "query_plan",
			fmt.Errorf("parse planner date %q: %w", s, err))
	}
	return t, nil
}
