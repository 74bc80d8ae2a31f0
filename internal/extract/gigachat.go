package extract

import (
	"context"
	"fmt"
	"strings"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	appconfig "receiptflow/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

// GigaChatAnalyzer implements Analyzer on the GigaChat API. The chat
// endpoint takes text only, so direct image analysis reports a recoverable
// failure and the pipeline falls through to the OCR-first strategies.
type GigaChatAnalyzer struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	logger *zap.Logger
}

func NewGigaChatAnalyzer(ctx context.Context, cfg *appconfig.LLMConfig, logger *zap.Logger) (*GigaChatAnalyzer, error) {
	if cfg.GigaChatKey == "" {
		return nil, fmt.Errorf("gigachat API key is not set")
	}
	client, err := gigago.NewClient(ctx, cfg.GigaChatKey,
		gigago.WithCustomScope(cfg.GigaChatScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gigachat client: %w", err)
	}

	model := client.GenerativeModel("GigaChat")
	model.SystemInstruction = "You are a precise receipt data extraction engine for Israeli receipts. You always answer with valid JSON only."
	model.Temperature = 0.1

	return &GigaChatAnalyzer{client: client, model: model, logger: logger}, nil
}

func (a *GigaChatAnalyzer) Name() string { return "gigachat" }

func (a *GigaChatAnalyzer) AnalyzeImages(ctx context.Context, images [][]byte) (models.RawReceipt, error) {
	return models.RawReceipt{}, fault.Newf(fault.KindRecoverableExtraction, "llm",
		"gigachat backend has no image input, OCR-first strategy required")
}

func (a *GigaChatAnalyzer) AnalyzeText(ctx context.Context, ocrText string) (models.RawReceipt, error) {
	resp, err := a.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: structuringPrompt(ocrText)},
	})
	if err != nil {
		return models.RawReceipt{}, classifyGigaChatErr(err)
	}
	if len(resp.Choices) == 0 {
		return models.RawReceipt{}, fault.Newf(fault.KindRecoverableExtraction, "llm",
			"empty gigachat response")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	a.logger.Debug("gigachat response received", zap.Int("length", len(content)))
	return decodeModelOutput("llm", content)
}

// PlanQuery maps a natural-language question onto an aggregation spec.
func (a *GigaChatAnalyzer) PlanQuery(ctx context.Context, question string) (models.QuerySpec, error) {
	resp, err := a.model.Generate(ctx, []gigago.Message{
		{Role: gigago.RoleUser, Content: planningPrompt(question)},
	})
	if err != nil {
		return models.QuerySpec{}, classifyGigaChatErr(err)
	}
	if len(resp.Choices) == 0 {
		return models.QuerySpec{}, fault.Newf(fault.KindRecoverableExtraction, "llm",
			"empty gigachat response")
	}
	return decodePlan(strings.TrimSpace(resp.Choices[0].Message.Content))
}

func (a *GigaChatAnalyzer) Close() error {
	a.client.Close()
	return nil
}

func classifyGigaChatErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "payload too large"):
		return fault.New(fault.KindUnrecoverableExtraction, "llm", err)
	default:
		return fault.New(fault.KindTransient, "llm", err)
	}
}
