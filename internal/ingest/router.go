package ingest

import (
	"context"
	"fmt"
	"strings"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	"receiptflow/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CommandHandler executes user maintenance commands that bypass the
// extraction pipeline.
type CommandHandler interface {
	DeleteLast(ctx context.Context, userID string) (uuid.UUID, error)
	DeleteAll(ctx context.Context, userID string) (int, error)
}

// QueryHandler answers natural-language questions about stored receipts.
// A non-nil error leaves the message on the queue for redelivery.
type QueryHandler interface {
	HandleQuestion(ctx context.Context, userID, question string) error
}

// Router is the ingest entry point: it dedups, stores inline payloads,
// assembles albums and emits finalized documents to the pipeline channel.
type Router struct {
	gate      *Gate
	assembler *Assembler
	store     storage.ObjectStore
	commands  CommandHandler
	queries   QueryHandler
	salt      string
	docs      chan<- models.Document
	logger    *zap.Logger

	// OnDuplicate, when set, observes every rejected duplicate delivery.
	OnDuplicate func()
}

func NewRouter(
	gate *Gate,
	assembler *Assembler,
	store storage.ObjectStore,
	commands CommandHandler,
	queries QueryHandler,
	salt string,
	docs chan<- models.Document,
	logger *zap.Logger,
) *Router {
	return &Router{
		gate:      gate,
		assembler: assembler,
		store:     store,
		commands:  commands,
		queries:   queries,
		salt:      salt,
		docs:      docs,
		logger:    logger,
	}
}

// Handle consumes one inbound message. Duplicates return nil so the
// transport acknowledges them without reprocessing.
func (r *Router) Handle(ctx context.Context, msg *models.InboundMessage) error {
	fp := Fingerprint(msg)
	if !r.gate.Admit(ctx, msg) {
		if r.OnDuplicate != nil {
			r.OnDuplicate()
		}
		return nil
	}
	msg.UserID = SecureUserID(r.salt, msg.UserID)

	switch msg.Kind {
	case models.PayloadImage:
		return r.handleImage(ctx, msg, fp)
	case models.PayloadCommand:
		return r.handleCommand(ctx, msg)
	case models.PayloadText:
		// text during an open album is taken as its close signal;
		// otherwise it is a question about stored receipts
		if doc := r.assembler.Close(msg.UserID); doc != nil {
			r.emit(ctx, *doc)
			return nil
		}
		if r.queries != nil && strings.TrimSpace(msg.Text) != "" {
			return r.queries.HandleQuestion(ctx, msg.UserID, msg.Text)
		}
		return nil
	default:
		return fault.Newf(fault.KindUnrecoverableExtraction, "ingest",
			"unknown payload kind %q", msg.Kind)
	}
}

func (r *Router) handleImage(ctx context.Context, msg *models.InboundMessage, fp string) error {
	if msg.ImageRef == "" {
		if len(msg.ImageData) == 0 {
			return fault.Newf(fault.KindUnrecoverableExtraction, "ingest",
				"image message %s carries no payload and no reference", msg.MessageID)
		}
		key := fmt.Sprintf("raw/%s/%s.jpg", msg.UserID, msg.MessageID)
		ref, err := r.store.Put(ctx, key, msg.ImageData, "image/jpeg")
		if err != nil {
			// nothing happened downstream yet; let the redelivery through
			r.gate.Forget(ctx, fp)
			return fault.New(fault.KindStorage, "ingest", err)
		}
		msg.ImageRef = ref
		msg.ImageData = nil
	}

	result := r.assembler.Offer(msg)
	switch result.Outcome {
	case OutcomeStandalone, OutcomeFinalized:
		r.emit(ctx, *result.Document)
	case OutcomeAlbumOpen:
		// more images of this album may follow; the deadline timer emits
	}
	return nil
}

func (r *Router) handleCommand(ctx context.Context, msg *models.InboundMessage) error {
	cmd := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(msg.Text, "/")))
	switch cmd {
	case "done":
		if doc := r.assembler.Close(msg.UserID); doc != nil {
			r.emit(ctx, *doc)
		}
		return nil
	case "delete_last":
		id, err := r.commands.DeleteLast(ctx, msg.UserID)
		if err != nil {
			return err
		}
		r.logger.Info("last receipt deleted",
			zap.String("user_id", msg.UserID),
			zap.String("receipt_id", id.String()),
		)
		return nil
	case "delete_all":
		n, err := r.commands.DeleteAll(ctx, msg.UserID)
		if err != nil {
			return err
		}
		r.logger.Info("all receipts deleted",
			zap.String("user_id", msg.UserID),
			zap.Int("count", n),
		)
		return nil
	default:
		r.logger.Debug("unknown command ignored", zap.String("command", cmd))
		return nil
	}
}

// Emit is the assembler's deadline sink; it shares the channel with the
// synchronous paths.
func (r *Router) Emit(ctx context.Context, doc models.Document) {
	r.emit(ctx, doc)
}

// emit blocks when every worker is busy; ingest backpressure is bounded by
// the queue visibility timeout upstream. On shutdown the document is
// dropped and the transport redelivers it.
func (r *Router) emit(ctx context.Context, doc models.Document) {
	select {
	case r.docs <- doc:
		r.logger.Debug("document emitted",
			zap.String("document_id", doc.ID.String()),
			zap.Int("images", len(doc.Images)),
		)
	case <-ctx.Done():
		r.logger.Warn("emit abandoned on shutdown",
			zap.String("document_id", doc.ID.String()),
		)
	}
}
