package extract

import (
	"testing"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
)

func TestDecodePlan(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    models.QuerySpec
		wantErr bool
	}{
		{
			name:    "plain object",
			content: `{"intent": "by_category", "from": "2026-08-01", "to": "2026-08-30", "category": ""}`,
			want: models.QuerySpec{
				Intent: models.IntentByCategory,
				From:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
				To:     time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name:    "fenced with prose",
			content: "Here is the plan:\n```json\n{\"intent\": \"count\", \"from\": \"\", \"to\": \"\", \"category\": \"\"}\n```",
			want:    models.QuerySpec{Intent: models.IntentCount},
		},
		{
			name:    "unknown intent degrades to total",
			content: `{"intent": "average", "from": "", "to": "", "category": "food"}`,
			want:    models.QuerySpec{Intent: models.IntentTotal, Category: "food"},
		},
		{
			name:    "inverted period is swapped",
			content: `{"intent": "total", "from": "2026-08-30", "to": "2026-08-01", "category": ""}`,
			want: models.QuerySpec{
				Intent: models.IntentTotal,
				From:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
				To:     time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
			},
		},
		{
			name:    "no JSON object",
			content: "I cannot answer that.",
			wantErr: true,
		},
		{
			name:    "unparseable date",
			content: `{"intent": "total", "from": "last week", "to": "", "category": ""}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodePlan(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if kind := fault.KindOf(err); kind != fault.KindRecoverableExtraction {
					t.Errorf("kind: got %s, want recoverable_extraction", kind)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodePlan: %v", err)
			}
			if got.Intent != tt.want.Intent {
				t.Errorf("intent: got %s, want %s", got.Intent, tt.want.Intent)
			}
			if !got.From.Equal(tt.want.From) || !got.To.Equal(tt.want.To) {
				t.Errorf("period: got [%v, %v], want [%v, %v]", got.From, got.To, tt.want.From, tt.want.To)
			}
			if got.Category != tt.want.Category {
				t.Errorf("category: got %q, want %q", got.Category, tt.want.Category)
			}
		})
	}
}
