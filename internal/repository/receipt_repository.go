package repository

import (
	"context"
	"errors"
	"fmt"

	"receiptflow/internal/fault"
	"receiptflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ReceiptRepository persists validated receipts. Commit is the pipeline's
// single commit point: the quota check, the receipt row and its items go
// into one transaction.
type ReceiptRepository struct {
	db          *pgxpool.Pool
	maxReceipts int
	logger      *zap.Logger
}

func NewReceiptRepository(db *pgxpool.Pool, maxReceipts int, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:          db,
		maxReceipts: maxReceipts,
		logger:      logger,
	}
}

// Commit writes the record exactly once. A replay with the same source
// document is a duplicate-suppressed no-op returning the existing id. Two
// concurrent commits for one user at the quota boundary cannot both
// succeed: the increment-and-check runs inside the transaction.
func (r *ReceiptRepository) Commit(ctx context.Context, record *models.ReceiptRecord) (uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}
	defer tx.Rollback(ctx)

	existing, err := r.findBySourceDocument(ctx, tx, record.SourceDocumentID)
	if err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}
	if existing != uuid.Nil {
		r.logger.Info("commit replay suppressed",
			zap.String("source_document_id", record.SourceDocumentID.String()),
			zap.String("receipt_id", existing.String()),
		)
		return existing, nil
	}

	count, err := r.incrementQuota(ctx, tx, record.UserID)
	if err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}
	if count > r.maxReceipts {
		return uuid.Nil, fault.Newf(fault.KindQuotaExceeded, "persist",
			"user %s reached the %d receipt limit", record.UserID, r.maxReceipts)
	}

	if err := r.insertReceipt(ctx, tx, record); err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}
	if err := r.insertItems(ctx, tx, record); err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}

	r.logger.Info("receipt committed",
		zap.String("receipt_id", record.ID.String()),
		zap.String("user_id", record.UserID),
		zap.Int("items", len(record.Items)),
		zap.Int("user_receipt_count", count),
	)
	return record.ID, nil
}

func (r *ReceiptRepository) findBySourceDocument(ctx context.Context, tx pgx.Tx, documentID uuid.UUID) (uuid.UUID, error) {
	query := squirrel.Select("id").
		From("receipts").
		Where(squirrel.Eq{"source_document_id": documentID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return uuid.Nil, err
	}

	var id uuid.UUID
	err = tx.QueryRow(ctx, sql, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// incrementQuota bumps the per-user counter and returns the new value.
// The upsert takes a row lock, serializing concurrent commits per user.
func (r *ReceiptRepository) incrementQuota(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	var count int
	err := tx.QueryRow(ctx,
		`INSERT INTO user_quotas (user_id, receipt_count)
		 VALUES ($1, 1)
		 ON CONFLICT (user_id)
		 DO UPDATE SET receipt_count = user_quotas.receipt_count + 1
		 RETURNING receipt_count`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment quota for user %s: %w", userID, err)
	}
	return count, nil
}

func (r *ReceiptRepository) insertReceipt(ctx context.Context, tx pgx.Tx, record *models.ReceiptRecord) error {
	query := squirrel.Insert("receipts").
		Columns("id", "user_id", "store_name", "purchasing_date", "currency", "payment_method",
			"receipt_number", "total", "reconciliation_flagged", "source_document_id", "created_at").
		Values(record.ID, record.UserID, record.StoreName, record.Date, record.Currency, record.PaymentMethod,
			record.ReceiptNumber, record.Total, record.ReconciliationFlagged, record.SourceDocumentID, record.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}

func (r *ReceiptRepository) insertItems(ctx context.Context, tx pgx.Tx, record *models.ReceiptRecord) error {
	if len(record.Items) == 0 {
		return nil
	}

	builder := squirrel.Insert("receipt_items").
		Columns("id", "receipt_id", "position", "name", "price", "quantity", "discount", "category", "subcategory").
		PlaceholderFormat(squirrel.Dollar)
	for i, item := range record.Items {
		builder = builder.Values(item.ID, record.ID, i, item.Name, item.Price, item.Quantity, item.Discount, item.Category, item.Subcategory)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, sql, args...)
	return err
}

// CountByUser reads the quota counter outside any commit.
func (r *ReceiptRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	query := squirrel.Select("receipt_count").
		From("user_quotas").
		Where(squirrel.Eq{"user_id": userID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.QueryRow(ctx, sql, args...).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetByID loads one receipt with its items in stored order.
func (r *ReceiptRepository) GetByID(ctx context.Context, receiptID uuid.UUID) (*models.ReceiptRecord, error) {
	query := squirrel.Select("id", "user_id", "store_name", "purchasing_date", "currency", "payment_method",
		"receipt_number", "total", "reconciliation_flagged", "source_document_id", "created_at").
		From("receipts").
		Where(squirrel.Eq{"id": receiptID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var record models.ReceiptRecord
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&record.ID, &record.UserID, &record.StoreName, &record.Date, &record.Currency, &record.PaymentMethod,
		&record.ReceiptNumber, &record.Total, &record.ReconciliationFlagged, &record.SourceDocumentID, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Items, err = r.itemsFor(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *ReceiptRepository) itemsFor(ctx context.Context, receiptID uuid.UUID) ([]models.LineItem, error) {
	query := squirrel.Select("id", "name", "price", "quantity", "discount", "category", "subcategory").
		From("receipt_items").
		Where(squirrel.Eq{"receipt_id": receiptID}).
		OrderBy("position ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.LineItem
	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &item.Quantity,
			&item.Discount, &item.Category, &item.Subcategory); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteLast removes the user's most recent receipt and decrements the
// quota counter in the same transaction. Returns the deleted id, or
// uuid.Nil when the user has no receipts.
func (r *ReceiptRepository) DeleteLast(ctx context.Context, userID string) (uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}
	defer tx.Rollback(ctx)

	var id uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM receipts
		 WHERE id = (
		     SELECT id FROM receipts
		     WHERE user_id = $1
		     ORDER BY created_at DESC
		     LIMIT 1
		 )
		 RETURNING id`,
		userID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE user_quotas
		 SET receipt_count = GREATEST(receipt_count - 1, 0)
		 WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fault.New(fault.KindStorage, "persist", err)
	}
	return id, nil
}

// DeleteAll removes every receipt for the user and resets the counter.
func (r *ReceiptRepository) DeleteAll(ctx context.Context, userID string) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fault.New(fault.KindStorage, "persist", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM receipts WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fault.New(fault.KindStorage, "persist", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM user_quotas WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fault.New(fault.KindStorage, "persist", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fault.New(fault.KindStorage, "persist", err)
	}
	return int(tag.RowsAffected()), nil
}
