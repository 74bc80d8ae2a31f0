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

// outcomeEnvelope is the wire shape the chat-integration layer renders
// into user replies.
type outcomeEnvelope struct {
	UserID     string                `json:"user_id"`
	Status     string                `json:"status"` // "processed", "failed" or "answered"
	Receipt    *receiptSummary       `json:"receipt,omitempty"`
	Failure    *models.FailureReport `json:"failure,omitempty"`
	Answer     *models.QueryResult   `json:"answer,omitempty"`
	NotifiedAt time.Time             `json:"notified_at"`
}

type receiptSummary struct {
	ReceiptID             string  `json:"receipt_id"`
	StoreName             string  `json:"store_name"`
	Date                  string  `json:"purchasing_date"`
	Currency              string  `json:"currency"`
	Total                 float64 `json:"total"`
	Items                 int     `json:"items"`
	ReconciliationFlagged bool    `json:"reconciliation_flagged"`
}

// SQSNotifier delivers per-document outcomes to the outbound queue.
type SQSNotifier struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

func NewSQSNotifier(ctx context.Context, cfg *appconfig.QueueConfig, logger *zap.Logger) (*SQSNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SQSNotifier{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.OutboundURL,
		logger:   logger,
	}, nil
}

func (n *SQSNotifier) NotifySuccess(ctx context.Context, record *models.ReceiptRecord) error {
	return n.send(ctx, outcomeEnvelope{
		UserID: record.UserID,
		Status: "processed",
		Receipt: &receiptSummary{
			ReceiptID:             record.ID.String(),
			StoreName:             record.StoreName,
			Date:                  record.Date.Format("2006-01-02"),
			Currency:              record.Currency,
			Total:                 record.Total,
			Items:                 len(record.Items),
			ReconciliationFlagged: record.ReconciliationFlagged,
		},
		NotifiedAt: time.Now().UTC(),
	})
}

func (n *SQSNotifier) NotifyFailure(ctx context.Context, report *models.FailureReport) error {
	return n.send(ctx, outcomeEnvelope{
		UserID:     report.UserID,
		Status:     "failed",
		Failure:    report,
		NotifiedAt: time.Now().UTC(),
	})
}

func (n *SQSNotifier) NotifyAnswer(ctx context.Context, userID string, result *models.QueryResult) error {
	return n.send(ctx, outcomeEnvelope{
		UserID:     userID,
		Status:     "answered",
		Answer:     result,
		NotifiedAt: time.Now().UTC(),
	})
}

func (n *SQSNotifier) send(ctx context.Context, env outcomeEnvelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send outcome for user %s: %w", env.UserID, err)
	}
	n.logger.Debug("outcome delivered",
		zap.String("user_id", env.UserID),
		zap.String("status", env.Status),
	)
	return nil
}
