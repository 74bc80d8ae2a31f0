package extract

import (
	"strings"
	"testing"
)

// The validator rejects receipts without line items, so the prompts must
// never invite an empty items array.
func TestPromptsRequireLineItems(t *testing.T) {
	for name, prompt := range map[string]string{
		"analysis":    analysisPrompt(),
		"structuring": structuringPrompt("some ocr text"),
	} {
		if strings.Contains(prompt, "may be empty") {
			t.Errorf("%s prompt allows an empty items array", name)
		}
		if !strings.Contains(prompt, "must never be empty") {
			t.Errorf("%s prompt does not require at least one item", name)
		}
	}
}
