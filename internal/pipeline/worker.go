package pipeline

import (
	"context"

	"receiptflow/internal/models"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool fans incoming documents out to the coordinator with bounded
// concurrency. Each Document is processed by exactly one worker; the bound
// protects downstream backend rate limits.
type Pool struct {
	coordinator *Coordinator
	workers     int64
	logger      *zap.Logger
}

func NewPool(coordinator *Coordinator, workers int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		coordinator: coordinator,
		workers:     int64(workers),
		logger:      logger,
	}
}

// Run consumes documents until the channel closes or the context is
// canceled, then waits for in-flight work to drain. Terminal document
// failures are already reported by the coordinator and do not stop the
// pool.
func (p *Pool) Run(ctx context.Context, docs <-chan models.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(p.workers)

	for {
		var doc models.Document
		var ok bool
		select {
		case <-gctx.Done():
			return g.Wait()
		case doc, ok = <-docs:
			if !ok {
				return g.Wait()
			}
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			return g.Wait()
		}
		g.Go(func() error {
			defer sem.Release(1)
			if err := p.coordinator.Process(gctx, doc); err != nil {
				p.logger.Debug("document processing ended in failure",
					zap.String("document_id", doc.ID.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
}
