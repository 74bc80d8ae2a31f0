package extract

import (
	"context"
	"fmt"
	"io"

	appconfig "receiptflow/pkg/config"

	"go.uber.org/zap"
)

// NewAnalyzer builds the configured language model backend.
func NewAnalyzer(ctx context.Context, cfg *appconfig.LLMConfig, logger *zap.Logger) (Analyzer, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiAnalyzer(ctx, cfg, logger)
	case "gigachat":
		return NewGigaChatAnalyzer(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q, valid: gemini, gigachat", cfg.Provider)
	}
}

// NewRecognizer builds the configured OCR backend.
func NewRecognizer(ctx context.Context, cfg *appconfig.OCRConfig, logger *zap.Logger) (Recognizer, error) {
	switch cfg.Provider {
	case "textract":
		return NewTextractRecognizer(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown OCR provider %q, valid: textract", cfg.Provider)
	}
}

// CloseAnalyzer releases backend resources when the analyzer holds any.
func CloseAnalyzer(a Analyzer) {
	if c, ok := a.(io.Closer); ok {
		_ = c.Close()
	}
}
