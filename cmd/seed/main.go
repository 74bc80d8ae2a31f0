// Command seed creates the database schema.
package main

import (
	"context"
	"log"

	"receiptflow/pkg/config"
	"receiptflow/pkg/logger"
	"receiptflow/pkg/postgres"

	"go.uber.org/zap"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS receipts (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		store_name TEXT NOT NULL,
		purchasing_date DATE NOT NULL,
		currency TEXT NOT NULL DEFAULT 'ILS',
		payment_method TEXT NOT NULL,
		receipt_number TEXT NOT NULL DEFAULT '',
		total NUMERIC(12, 2) NOT NULL,
		reconciliation_flagged BOOLEAN NOT NULL DEFAULT FALSE,
		source_document_id UUID NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipts_user_created
		ON receipts (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS receipt_items (
		id UUID PRIMARY KEY,
		receipt_id UUID NOT NULL REFERENCES receipts (id) ON DELETE CASCADE,
		position INT NOT NULL,
		name TEXT NOT NULL,
		price NUMERIC(12, 2) NOT NULL,
		quantity NUMERIC(10, 3) NOT NULL DEFAULT 1,
		discount NUMERIC(12, 2) NOT NULL DEFAULT 0,
		category TEXT NOT NULL,
		subcategory TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_receipt_items_receipt
		ON receipt_items (receipt_id, position)`,
	`CREATE TABLE IF NOT EXISTS user_quotas (
		user_id TEXT PRIMARY KEY,
		receipt_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS processed_messages (
		fingerprint TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_processed_messages_age
		ON processed_messages (processed_at)`,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLogger := logger.Get()

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	appLogger.Info("Creating schema...")
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			appLogger.Fatal("Schema statement failed",
				zap.String("statement", stmt),
				zap.Error(err),
			)
		}
	}
	appLogger.Info("Schema ready")
}
