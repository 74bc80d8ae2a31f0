package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"receiptflow/internal/fault"
	appconfig "receiptflow/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"go.uber.org/zap"
)

// TextractRecognizer implements Recognizer on AWS Textract synchronous text
// detection. Confidence is the mean of per-line scores scaled to [0, 1].
type TextractRecognizer struct {
	client *textract.Client
	logger *zap.Logger
}

func NewTextractRecognizer(ctx context.Context, cfg *appconfig.OCRConfig, logger *zap.Logger) (*TextractRecognizer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &TextractRecognizer{
		client: textract.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

func (r *TextractRecognizer) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	out, err := r.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: image},
	})
	if err != nil {
		return "", 0, classifyTextractErr(err)
	}

	var (
		lines   []string
		sum     float64
		counted int
	)
	for _, block := range out.Blocks {
		if block.BlockType != types.BlockTypeLine {
			continue
		}
		lines = append(lines, aws.ToString(block.Text))
		if block.Confidence != nil {
			sum += float64(*block.Confidence) / 100
			counted++
		}
	}

	text := strings.Join(lines, "\n")
	confidence := 0.0
	if counted > 0 {
		confidence = sum / float64(counted)
	}

	r.logger.Debug("textract detection finished",
		zap.Int("lines", len(lines)),
		zap.Float64("mean_confidence", confidence),
	)

	if text == "" {
		return "", 0, fault.Newf(fault.KindRecoverableExtraction, "ocr",
			"no text lines detected")
	}
	return text, confidence, nil
}

// classifyTextractErr maps Textract failures onto the pipeline taxonomy.
// Document format rejections are unrecoverable for this input; throttling
// and internal errors are transient.
func classifyTextractErr(err error) error {
	var (
		badDoc       *types.BadDocumentException
		tooLarge     *types.DocumentTooLargeException
		unsupported  *types.UnsupportedDocumentException
		invalidParam *types.InvalidParameterException
		throttled    *types.ProvisionedThroughputExceededException
		internal     *types.InternalServerError
	)
	switch {
	case errors.As(err, &badDoc), errors.As(err, &tooLarge),
		errors.As(err, &unsupported), errors.As(err, &invalidParam):
		return fault.New(fault.KindUnrecoverableExtraction, "ocr", err)
	case errors.As(err, &throttled), errors.As(err, &internal):
		return fault.New(fault.KindTransient, "ocr", err)
	default:
		return fault.New(fault.KindTransient, "ocr", err)
	}
}
