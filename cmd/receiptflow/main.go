package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"receiptflow/internal/api"
	"receiptflow/internal/extract"
	"receiptflow/internal/ingest"
	"receiptflow/internal/models"
	"receiptflow/internal/pipeline"
	"receiptflow/internal/preprocess"
	"receiptflow/internal/query"
	"receiptflow/internal/repository"
	"receiptflow/internal/storage"
	"receiptflow/internal/strategy"
	"receiptflow/internal/transport"
	"receiptflow/internal/validate"
	"receiptflow/pkg/config"
	"receiptflow/pkg/logger"
	"receiptflow/pkg/postgres"

	"go.uber.org/zap"
)

// countingNotifier feeds the ops stats without touching delivery.
type countingNotifier struct {
	inner pipeline.Notifier
	stats *api.Stats
}

func (n *countingNotifier) NotifySuccess(ctx context.Context, record *models.ReceiptRecord) error {
	n.stats.Processed.Add(1)
	return n.inner.NotifySuccess(ctx, record)
}

func (n *countingNotifier) NotifyFailure(ctx context.Context, report *models.FailureReport) error {
	n.stats.Failed.Add(1)
	return n.inner.NotifyFailure(ctx, report)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting receiptflow service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Initialize object storage
	store, err := storage.NewS3Store(ctx, &cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	// Initialize extraction backends
	recognizer, err := extract.NewRecognizer(ctx, &cfg.OCR, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize OCR backend", zap.Error(err))
	}
	analyzer, err := extract.NewAnalyzer(ctx, &cfg.LLM, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize LLM backend", zap.Error(err))
	}
	defer extract.CloseAnalyzer(analyzer)

	// Initialize pipeline stages
	level, err := preprocess.ParseLevel(cfg.Pipeline.PreprocessLevel)
	if err != nil {
		appLogger.Fatal("Invalid preprocess level", zap.Error(err))
	}
	preprocessor := preprocess.New(store, level, cfg.Pipeline.MaxImageDim, appLogger)

	invoker := extract.NewInvoker(store, recognizer, analyzer,
		cfg.OCR.Timeout, cfg.LLM.Timeout, cfg.Pipeline.MinConfidence, appLogger)

	validator := validate.NewValidator(cfg.Pipeline.TolerancePct,
		cfg.Pipeline.ToleranceFloor, cfg.Pipeline.MaxDateAge, appLogger)

	receiptRepo := repository.NewReceiptRepository(db, cfg.Pipeline.MaxReceipts, appLogger)

	notifier, err := transport.NewSQSNotifier(ctx, &cfg.Queue, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize notifier", zap.Error(err))
	}
	deadLetter, err := transport.NewSQSDeadLetter(ctx, &cfg.Queue, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize dead-letter sink", zap.Error(err))
	}

	initial, err := strategy.Parse(cfg.Pipeline.InitialStrategy)
	if err != nil {
		appLogger.Fatal("Invalid initial strategy", zap.Error(err))
	}

	stats := api.NewStats()
	coordinator := pipeline.NewCoordinator(
		preprocessor,
		invoker,
		validator,
		receiptRepo,
		&countingNotifier{inner: notifier, stats: stats},
		deadLetter,
		pipeline.Config{
			InitialStrategy: initial,
			MaxRetries:      cfg.Pipeline.MaxRetries,
			BackoffBase:     cfg.Pipeline.BackoffBase,
			BackoffMax:      cfg.Pipeline.BackoffMax,
		},
		appLogger,
	)

	// Initialize the query path
	planner, ok := analyzer.(extract.QueryPlanner)
	if !ok {
		appLogger.Fatal("LLM backend cannot plan queries",
			zap.String("provider", analyzer.Name()))
	}
	querySvc := query.NewService(planner, receiptRepo, notifier, appLogger)

	// Initialize ingest
	docs := make(chan models.Document)
	msgRepo := repository.NewMessageRepository(db, appLogger)
	gate := ingest.NewGate(cfg.Pipeline.DedupCapacity, cfg.Pipeline.DedupWindow, msgRepo, appLogger)

	var router *ingest.Router
	assembler := ingest.NewAssembler(cfg.Pipeline.AlbumWindow, func(doc models.Document) {
		router.Emit(ctx, doc)
	}, appLogger)

	router = ingest.NewRouter(gate, assembler, store, receiptRepo, querySvc,
		cfg.Pipeline.UserIDSalt, docs, appLogger)
	router.OnDuplicate = func() { stats.Duplicates.Add(1) }

	// Trim durable fingerprints past the redelivery horizon
	go func() {
		ticker := time.NewTicker(cfg.Pipeline.DedupWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := msgRepo.PurgeOlderThan(ctx, int(cfg.Pipeline.DedupWindow.Seconds()))
				if err != nil {
					appLogger.Warn("fingerprint purge failed", zap.Error(err))
				} else if n > 0 {
					appLogger.Debug("fingerprints purged", zap.Int64("rows", n))
				}
			}
		}
	}()

	consumer, err := transport.NewConsumer(ctx, &cfg.Queue, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize consumer", zap.Error(err))
	}

	// Start worker pool
	pool := pipeline.NewPool(coordinator, cfg.Pipeline.Workers, appLogger)
	poolDone := make(chan error, 1)
	go func() { poolDone <- pool.Run(ctx, docs) }()

	// Start consumer
	consumerDone := make(chan error, 1)
	go func() { consumerDone <- consumer.Run(ctx, router.Handle) }()

	// Start ops server
	app := api.SetupRouter(db, stats, appLogger)
	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Ops server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Error("Ops server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down")

	if err := app.Shutdown(); err != nil {
		appLogger.Error("Ops server shutdown error", zap.Error(err))
	}

	// The docs channel is never closed: an album deadline timer armed
	// before shutdown may still fire and emit. The pool exits on context
	// cancellation and emit drops documents once the context is done.
	<-consumerDone
	if err := <-poolDone; err != nil {
		appLogger.Error("Worker pool exited with error", zap.Error(err))
	}

	appLogger.Info("Shutdown complete")
}
