// Package extract holds the OCR and language model backends and the invoker
// that runs one extraction attempt per strategy.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
)

// Recognizer converts a receipt image into plain text. Confidence is the
// backend's mean per-line score in [0, 1], or 0 when the backend reports none.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (text string, confidence float64, err error)
}

// Analyzer produces a structured receipt either directly from images or from
// OCR-extracted text.
type Analyzer interface {
	Name() string
	AnalyzeImages(ctx context.Context, images [][]byte) (models.RawReceipt, error)
	AnalyzeText(ctx context.Context, ocrText string) (models.RawReceipt, error)
}

// sliceJSONObject cuts the outermost JSON object out of a model response.
// Models wrap JSON in markdown fences or prose despite instructions, so the
// object is sliced out by brace positions before parsing.
func sliceJSONObject(content string) (string, bool) {
	content = strings.TrimSpace(content)
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// decodeModelOutput normalizes a model response into a RawReceipt.
func decodeModelOutput(stage, content string) (models.RawReceipt, error) {
	var receipt models.RawReceipt

	jsonStr, ok := sliceJSONObject(content)
	if !ok {
		return receipt, fault.Newf(fault.KindRecoverableExtraction, stage,
			"no JSON object in model response (%d bytes)", len(content))
	}

	if err := json.Unmarshal([]byte(jsonStr), &receipt); err != nil {
		jsonStr = strings.TrimSpace(jsonStr)
		jsonStr = strings.TrimPrefix(jsonStr, "```json")
		jsonStr = strings.TrimPrefix(jsonStr, "```")
		jsonStr = strings.TrimSuffix(jsonStr, "```")
		jsonStr = strings.TrimSpace(jsonStr)

		if err := json.Unmarshal([]byte(jsonStr), &receipt); err != nil {
			return receipt, fault.New(fault.KindRecoverableExtraction, stage,
				fmt.Errorf("parse model response: %w", err))
		}
	}
	return receipt, nil
}
