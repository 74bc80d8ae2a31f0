package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"receiptflow/internal/models"
	appconfig "receiptflow/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"
)

// deadLetterEnvelope carries everything an operator needs to replay or
// inspect a terminally failed document. Image references stay valid in
// object storage.
type deadLetterEnvelope struct {
	DocumentID string                `json:"document_id"`
	UserID     string                `json:"user_id"`
	ImageRefs  []string              `json:"image_refs"`
	Composite  string                `json:"composite_ref,omitempty"`
	Report     *models.FailureReport `json:"report"`
	SentAt     time.Time             `json:"sent_at"`
}

// SQSDeadLetter sends terminally failed documents to the dead-letter queue.
type SQSDeadLetter struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

func NewSQSDeadLetter(ctx context.Context, cfg *appconfig.QueueConfig, logger *zap.Logger) (*SQSDeadLetter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SQSDeadLetter{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.DeadLetterURL,
		logger:   logger,
	}, nil
}

func (d *SQSDeadLetter) Send(ctx context.Context, doc *models.Document, report *models.FailureReport) error {
	refs := make([]string, 0, len(doc.Images))
	for _, img := range doc.Images {
		refs = append(refs, img.Raw)
	}

	body, err := json.Marshal(deadLetterEnvelope{
		DocumentID: doc.ID.String(),
		UserID:     doc.UserID,
		ImageRefs:  refs,
		Composite:  doc.Composite,
		Report:     report,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("dead-letter document %s: %w", doc.ID, err)
	}

	d.logger.Info("document dead-lettered",
		zap.String("document_id", doc.ID.String()),
		zap.String("kind", report.Kind),
	)
	return nil
}
