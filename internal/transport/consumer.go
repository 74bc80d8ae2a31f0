// Package transport binds the pipeline to its SQS queues: the inbound
// consumer, the outbound notifier and the dead-letter sink.
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
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// inboundEnvelope is the wire shape produced by the chat-integration layer.
type inboundEnvelope struct {
	MessageID  string    `json:"message_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	GroupID    string    `json:"media_group_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	ImageData  []byte    `json:"image_data,omitempty"`
	ImageRef   string    `json:"image_ref,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Handler consumes one decoded message. A nil return acknowledges the
// message; an error leaves it on the queue for redelivery.
type Handler func(ctx context.Context, msg *models.InboundMessage) error

// Consumer long-polls the inbound queue and feeds the handler. Delivery is
// at-least-once; deduplication happens behind the handler.
type Consumer struct {
	client     *sqs.Client
	queueURL   string
	waitTime   time.Duration
	visibility time.Duration
	logger     *zap.Logger
}

func NewConsumer(ctx context.Context, cfg *appconfig.QueueConfig, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Consumer{
		client:     sqs.NewFromConfig(awsCfg),
		queueURL:   cfg.InboundURL,
		waitTime:   cfg.WaitTime,
		visibility: cfg.VisibilityTimeout,
		logger:     logger,
	}, nil
}

// Run polls until the context is canceled. Receive errors back off briefly
// instead of spinning.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     int32(c.waitTime.Seconds()),
			VisibilityTimeout:   int32(c.visibility.Seconds()),
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, raw := range out.Messages {
			c.consume(ctx, handle, raw)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, handle Handler, raw types.Message) {
	msg, err := decodeEnvelope(aws.ToString(raw.Body))
	if err != nil {
		// a malformed body never becomes parseable; drop it
		c.logger.Error("malformed inbound message dropped",
			zap.String("sqs_message_id", aws.ToString(raw.MessageId)),
			zap.Error(err),
		)
		c.ack(ctx, raw)
		return
	}

	if err := handle(ctx, msg); err != nil {
		c.logger.Warn("message handling failed, left for redelivery",
			zap.String("message_id", msg.MessageID),
			zap.Error(err),
		)
		return
	}
	c.ack(ctx, raw)
}

func (c *Consumer) ack(ctx context.Context, raw types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: raw.ReceiptHandle,
	})
	if err != nil {
		c.logger.Warn("delete failed, message will redeliver",
			zap.String("sqs_message_id", aws.ToString(raw.MessageId)),
			zap.Error(err),
		)
	}
}

func decodeEnvelope(body string) (*models.InboundMessage, error) {
	var env inboundEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.MessageID == "" || env.UserID == "" {
		return nil, fmt.Errorf("envelope missing message_id or user_id")
	}

	kind := models.PayloadKind(env.Kind)
	switch kind {
	case models.PayloadImage, models.PayloadText, models.PayloadCommand:
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}

	received := env.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}

	return &models.InboundMessage{
		MessageID:  env.MessageID,
		UserID:     env.UserID,
		Kind:       kind,
		GroupID:    env.GroupID,
		Text:       env.Text,
		ImageData:  env.ImageData,
		ImageRef:   env.ImageRef,
		ReceivedAt: received,
	}, nil
}
