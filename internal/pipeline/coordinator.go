// Package pipeline drives one Document from preprocessing to commit and is
// the only place where failures turn into retry, escalation or terminal
// outcomes.
package pipeline

import (
	"context"
	"time"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"
	"receiptflow/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Preprocessor prepares images before extraction.
type Preprocessor interface {
	Prepare(ctx context.Context, doc models.Document) (models.Document, error)
	Stitch(ctx context.Context, doc models.Document) (models.Document, error)
}

// Extractor runs one extraction attempt at a strategy.
type Extractor interface {
	Extract(ctx context.Context, doc *models.Document, strat strategy.Strategy) (*models.ExtractionResult, error)
}

// Validator turns an extraction result into a receipt record.
type Validator interface {
	Validate(res *models.ExtractionResult) (*models.ReceiptRecord, error)
}

// Committer persists a record exactly once.
type Committer interface {
	Commit(ctx context.Context, record *models.ReceiptRecord) (uuid.UUID, error)
}

// Notifier delivers the final per-document outcome to the user-facing
// layer. Exactly one of the two methods is called per Document.
type Notifier interface {
	NotifySuccess(ctx context.Context, record *models.ReceiptRecord) error
	NotifyFailure(ctx context.Context, report *models.FailureReport) error
}

// DeadLetterSink receives terminally failed documents for inspection.
type DeadLetterSink interface {
	Send(ctx context.Context, doc *models.Document, report *models.FailureReport) error
}

type Config struct {
	InitialStrategy strategy.Strategy
	MaxRetries      int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
}

// Coordinator owns the retry, escalation and terminal failure policy.
// Stages classify their own failures; they never retry themselves.
type Coordinator struct {
	preprocessor Preprocessor
	extractor    Extractor
	validator    Validator
	committer    Committer
	notifier     Notifier
	deadLetter   DeadLetterSink
	cfg          Config
	sleep        func(ctx context.Context, d time.Duration) error
	logger       *zap.Logger
}

func NewCoordinator(
	preprocessor Preprocessor,
	extractor Extractor,
	validator Validator,
	committer Committer,
	notifier Notifier,
	deadLetter DeadLetterSink,
	cfg Config,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		preprocessor: preprocessor,
		extractor:    extractor,
		validator:    validator,
		committer:    committer,
		notifier:     notifier,
		deadLetter:   deadLetter,
		cfg:          cfg,
		sleep:        sleepCtx,
		logger:       logger,
	}
}

// Process drives one Document to a final outcome. It always produces
// exactly one notification: success after commit, or one failure report
// (also dead-lettered) on terminal failure.
func (c *Coordinator) Process(ctx context.Context, doc models.Document) error {
	prepared, err := c.preprocessor.Prepare(ctx, doc)
	if err != nil {
		// Preprocessing degrades individual images instead of failing;
		// an error here is a storage problem with the raw uploads.
		prepared, err = c.retryStorage(ctx, doc, err)
		if err != nil {
			return c.terminate(ctx, &doc, "", err)
		}
	}

	sel, err := strategy.NewSelector(c.cfg.InitialStrategy)
	if err != nil {
		return c.terminate(ctx, &prepared, "", fault.New(fault.KindUnrecoverableExtraction, "pipeline", err))
	}

	for {
		strat := sel.Current()
		record, err := c.attempt(ctx, &prepared, strat)
		if err == nil {
			if nerr := c.notifier.NotifySuccess(ctx, record); nerr != nil {
				c.logger.Warn("success notification failed",
					zap.String("document_id", prepared.ID.String()),
					zap.Error(nerr),
				)
			}
			return nil
		}

		kind := fault.KindOf(err)
		c.logger.Info("attempt failed",
			zap.String("document_id", prepared.ID.String()),
			zap.String("strategy", string(strat)),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)

		switch kind {
		case fault.KindRecoverableExtraction, fault.KindValidation:
			if next := sel.Escalate(string(kind)); next == strategy.Exhausted {
				return c.terminate(ctx, &prepared, string(strat), err)
			}
			// pp_ocr_llm reads the stitched composite when albums have
			// several pages; build it lazily on first need.
			if sel.Current() == strategy.PreprocessOCRLLM && prepared.Composite == "" {
				if stitched, serr := c.preprocessor.Stitch(ctx, prepared); serr == nil {
					prepared = stitched
				} else {
					c.logger.Warn("stitching failed, falling back to per-image extraction",
						zap.String("document_id", prepared.ID.String()),
						zap.Error(serr),
					)
				}
			}
		case fault.KindQuotaExceeded, fault.KindUnrecoverableExtraction:
			sel.Abort(string(kind))
			return c.terminate(ctx, &prepared, string(strat), err)
		case fault.KindStorage:
			// attempt already retried with backoff; storage is terminal
			// once the retry bound is spent.
			return c.terminate(ctx, &prepared, string(strat), err)
		default:
			// transient retries at the same strategy are spent, now
			// escalation is considered.
			if next := sel.Escalate(string(kind)); next == strategy.Exhausted {
				return c.terminate(ctx, &prepared, string(strat), err)
			}
		}
	}
}

// attempt is one pass of extract, validate, commit. Transient failures are
// retried here at the same strategy with backoff before the error is
// surfaced to the escalation loop.
func (c *Coordinator) attempt(ctx context.Context, doc *models.Document, strat strategy.Strategy) (*models.ReceiptRecord, error) {
	var lastErr error
	for try := 0; try <= c.cfg.MaxRetries; try++ {
		if try > 0 {
			if err := c.sleep(ctx, c.backoff(try)); err != nil {
				return nil, fault.New(fault.KindTransient, "pipeline", err)
			}
		}

		res, err := c.extractor.Extract(ctx, doc, strat)
		if err != nil {
			if kind := fault.KindOf(err); kind == fault.KindTransient || kind == fault.KindStorage {
				lastErr = err
				continue
			}
			return nil, err
		}

		record, err := c.validator.Validate(res)
		if err != nil {
			return nil, err
		}

		if err := c.commitWithRetry(ctx, record); err != nil {
			return nil, err
		}
		return record, nil
	}
	return nil, lastErr
}

// commitWithRetry retries the commit on storage failures. Commit is
// idempotent (replays are duplicate-suppressed), so retrying is safe.
func (c *Coordinator) commitWithRetry(ctx context.Context, record *models.ReceiptRecord) error {
	var lastErr error
	for try := 0; try <= c.cfg.MaxRetries; try++ {
		if try > 0 {
			if err := c.sleep(ctx, c.backoff(try)); err != nil {
				return fault.New(fault.KindStorage, "persist", err)
			}
		}
		_, err := c.committer.Commit(ctx, record)
		if err == nil {
			return nil
		}
		if fault.KindOf(err) != fault.KindStorage {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// retryStorage retries a storage failure with backoff; exhaustion returns
// the last error for termination.
func (c *Coordinator) retryStorage(ctx context.Context, doc models.Document, err error) (models.Document, error) {
	for try := 1; try <= c.cfg.MaxRetries; try++ {
		if serr := c.sleep(ctx, c.backoff(try)); serr != nil {
			return doc, err
		}
		prepared, rerr := c.preprocessor.Prepare(ctx, doc)
		if rerr == nil {
			return prepared, nil
		}
		err = rerr
	}
	return doc, err
}

// terminate reports a terminal failure exactly once: one user notification
// and one dead-letter delivery.
func (c *Coordinator) terminate(ctx context.Context, doc *models.Document, strat string, cause error) error {
	report := &models.FailureReport{
		DocumentID: doc.ID,
		UserID:     doc.UserID,
		Kind:       string(fault.KindOf(cause)),
		Detail:     cause.Error(),
		Strategy:   strat,
		OccurredAt: time.Now().UTC(),
	}

	if err := c.notifier.NotifyFailure(ctx, report); err != nil {
		c.logger.Error("failure notification failed",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err),
		)
	}
	if err := c.deadLetter.Send(ctx, doc, report); err != nil {
		c.logger.Error("dead-letter delivery failed",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err),
		)
	}

	c.logger.Warn("document terminally failed",
		zap.String("document_id", doc.ID.String()),
		zap.String("user_id", doc.UserID),
		zap.String("kind", report.Kind),
		zap.String("last_strategy", strat),
	)
	return cause
}

func (c *Coordinator) backoff(try int) time.Duration {
	d := c.cfg.BackoffBase << (try - 1)
	if d > c.cfg.BackoffMax {
		d = c.cfg.BackoffMax
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
