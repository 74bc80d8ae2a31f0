package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	"receiptflow/internal/storage"
	"receiptflow/internal/strategy"

	"go.uber.org/zap"
)

// requiredFields counted by the coverage heuristic: store name, date,
// payment method and total.
const requiredFields = 4

// Invoker runs exactly one extraction attempt for a document at a given
// strategy. Classification of failures is done here and in the backends;
// retry and escalation decisions belong to the coordinator.
type Invoker struct {
	store         storage.ObjectStore
	recognizer    Recognizer
	analyzer      Analyzer
	ocrTimeout    time.Duration
	llmTimeout    time.Duration
	minConfidence float64
	logger        *zap.Logger
}

func NewInvoker(
	store storage.ObjectStore,
	recognizer Recognizer,
	analyzer Analyzer,
	ocrTimeout, llmTimeout time.Duration,
	minConfidence float64,
	logger *zap.Logger,
) *Invoker {
	return &Invoker{
		store:         store,
		recognizer:    recognizer,
		analyzer:      analyzer,
		ocrTimeout:    ocrTimeout,
		llmTimeout:    llmTimeout,
		minConfidence: minConfidence,
		logger:        logger,
	}
}

// Extract performs one attempt and never mutates the document. On success
// the result carries the normalized receipt plus confidence signals; on
// failure the returned error is classified for the coordinator.
func (inv *Invoker) Extract(ctx context.Context, doc *models.Document, strat strategy.Strategy) (*models.ExtractionResult, error) {
	start := time.Now()

	var (
		receipt models.RawReceipt
		rawText string
		ocrConf float64
		err     error
	)

	switch strat {
	case strategy.LLMDirect:
		receipt, err = inv.analyzeDirect(ctx, doc)
	case strategy.OCRThenLLM:
		receipt, rawText, ocrConf, err = inv.analyzeViaOCR(ctx, doc, false)
	case strategy.PreprocessOCRLLM:
		receipt, rawText, ocrConf, err = inv.analyzeViaOCR(ctx, doc, true)
	default:
		return nil, fault.Newf(fault.KindUnrecoverableExtraction, "extract",
			"no executable plan for strategy %q", strat)
	}
	if err != nil {
		return nil, err
	}

	signals := models.ConfidenceSignals{
		Score:         ocrConf,
		FieldCoverage: fieldCoverage(receipt),
		RawTextLength: len(rawText),
	}
	if signals.FieldCoverage < inv.minConfidence {
		return nil, fault.Newf(fault.KindRecoverableExtraction, "extract",
			"field coverage %.2f below threshold %.2f", signals.FieldCoverage, inv.minConfidence)
	}

	inv.logger.Info("extraction attempt succeeded",
		zap.String("document_id", doc.ID.String()),
		zap.String("strategy", string(strat)),
		zap.Float64("field_coverage", signals.FieldCoverage),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &models.ExtractionResult{
		DocumentID:   doc.ID,
		UserID:       doc.UserID,
		StrategyUsed: string(strat),
		Receipt:      receipt,
		RawText:      rawText,
		Confidence:   signals,
	}, nil
}

// analyzeDirect feeds the raw images to the model in one call.
func (inv *Invoker) analyzeDirect(ctx context.Context, doc *models.Document) (models.RawReceipt, error) {
	images := make([][]byte, 0, len(doc.Images))
	for _, ref := range doc.Images {
		data, err := inv.store.Get(ctx, ref.Raw)
		if err != nil {
			return models.RawReceipt{}, fault.New(fault.KindStorage, "extract",
				fmt.Errorf("fetch image %s: %w", ref.Raw, err))
		}
		images = append(images, data)
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.llmTimeout)
	defer cancel()
	return inv.analyzer.AnalyzeImages(callCtx, images)
}

// analyzeViaOCR recognizes each page and structures the concatenated text.
// With enhanced set, the composite image is preferred when stitching ran,
// falling back to per-image enhanced references.
func (inv *Invoker) analyzeViaOCR(ctx context.Context, doc *models.Document, enhanced bool) (models.RawReceipt, string, float64, error) {
	refs := inv.imageRefs(doc, enhanced)

	var (
		pages   []string
		sumConf float64
	)
	for _, ref := range refs {
		data, err := inv.store.Get(ctx, ref)
		if err != nil {
			return models.RawReceipt{}, "", 0, fault.New(fault.KindStorage, "extract",
				fmt.Errorf("fetch image %s: %w", ref, err))
		}

		ocrCtx, cancel := context.WithTimeout(ctx, inv.ocrTimeout)
		text, conf, err := inv.recognizer.Recognize(ocrCtx, data)
		cancel()
		if err != nil {
			return models.RawReceipt{}, "", 0, err
		}
		pages = append(pages, text)
		sumConf += conf
	}

	rawText := strings.Join(pages, "\n\n")
	meanConf := sumConf / float64(len(refs))
	if meanConf > 0 && meanConf < inv.minConfidence {
		return models.RawReceipt{}, rawText, meanConf, fault.Newf(
			fault.KindRecoverableExtraction, "extract",
			"ocr confidence %.2f below threshold %.2f", meanConf, inv.minConfidence)
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.llmTimeout)
	defer cancel()
	receipt, err := inv.analyzer.AnalyzeText(callCtx, rawText)
	if err != nil {
		return models.RawReceipt{}, rawText, meanConf, err
	}
	return receipt, rawText, meanConf, nil
}

// imageRefs picks the object references to read for one attempt.
func (inv *Invoker) imageRefs(doc *models.Document, enhanced bool) []string {
	if enhanced && doc.Composite != "" {
		return []string{doc.Composite}
	}
	refs := make([]string, 0, len(doc.Images))
	for _, img := range doc.Images {
		if enhanced && img.Enhanced != "" && !img.BestEffort {
			refs = append(refs, img.Enhanced)
		} else {
			refs = append(refs, img.Raw)
		}
	}
	return refs
}

// fieldCoverage is the share of required receipt fields actually present.
func fieldCoverage(r models.RawReceipt) float64 {
	present := 0
	if strings.TrimSpace(r.StoreName) != "" {
		present++
	}
	if strings.TrimSpace(r.Date) != "" {
		present++
	}
	if strings.TrimSpace(r.PaymentMethod) != "" {
		present++
	}
	if r.Total > 0 {
		present++
	}
	return float64(present) / float64(requiredFields)
}
