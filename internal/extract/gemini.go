package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	appconfig "receiptflow/pkg/config"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiAnalyzer implements Analyzer on the Gemini API. It supports direct
// image analysis, so it serves every strategy.
type GeminiAnalyzer struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *zap.Logger
}

func NewGeminiAnalyzer(ctx context.Context, cfg *appconfig.LLMConfig, logger *zap.Logger) (*GeminiAnalyzer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key is not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.GeminiModel)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"

	return &GeminiAnalyzer{client: client, model: model, logger: logger}, nil
}

func (a *GeminiAnalyzer) Name() string { return "gemini" }

func (a *GeminiAnalyzer) AnalyzeImages(ctx context.Context, images [][]byte) (models.RawReceipt, error) {
	parts := make([]genai.Part, 0, len(images)+1)
	parts = append(parts, genai.Text(analysisPrompt()))
	for _, img := range images {
		parts = append(parts, genai.Blob{MIMEType: "image/jpeg", Data: img})
	}
	return a.generate(ctx, parts)
}

func (a *GeminiAnalyzer) AnalyzeText(ctx context.Context, ocrText string) (models.RawReceipt, error) {
	return a.generate(ctx, []genai.Part{genai.Text(structuringPrompt(ocrText))})
}

func (a *GeminiAnalyzer) Close() error {
	return a.client.Close()
}

// PlanQuery maps a natural-language question onto an aggregation spec.
func (a *GeminiAnalyzer) PlanQuery(ctx context.Context, question string) (models.QuerySpec, error) {
	content, err := a.generateText(ctx, []genai.Part{genai.Text(planningPrompt(question))})
	if err != nil {
		return models.QuerySpec{}, err
	}
	return decodePlan(content)
}

func (a *GeminiAnalyzer) generate(ctx context.Context, parts []genai.Part) (models.RawReceipt, error) {
	content, err := a.generateText(ctx, parts)
	if err != nil {
		return models.RawReceipt{}, err
	}
	return decodeModelOutput("llm", content)
}

func (a *GeminiAnalyzer) generateText(ctx context.Context, parts []genai.Part) (string, error) {
	resp, err := a.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGeminiErr(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fault.Newf(fault.KindRecoverableExtraction, "llm",
			"empty gemini response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	a.logger.Debug("gemini response received", zap.Int("length", sb.Len()))
	return sb.String(), nil
}

// classifyGeminiErr maps API failures onto the pipeline taxonomy. Rate
// limits and 5xx responses are transient; auth, permission and payload
// rejections are unrecoverable for this input.
func classifyGeminiErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429:
			return fault.New(fault.KindTransient, "llm", err)
		case 500, 502, 503, 504:
			return fault.New(fault.KindTransient, "llm", err)
		case 400, 401, 403, 404, 413:
			return fault.New(fault.KindUnrecoverableExtraction, "llm", err)
		default:
			if apiErr.Code >= 500 {
				return fault.New(fault.KindTransient, "llm", err)
			}
			return fault.New(fault.KindUnrecoverableExtraction, "llm", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fault.New(fault.KindTransient, "llm", err)
	}
	if errors.Is(err, context.Canceled) {
		return fault.New(fault.KindTransient, "llm", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return fault.New(fault.KindUnrecoverableExtraction, "llm", err)
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"),
		strings.Contains(msg, "connection"), strings.Contains(msg, "network"):
		return fault.New(fault.KindTransient, "llm", err)
	default:
		return fault.New(fault.KindTransient, "llm", err)
	}
}
