package repository

import (
	"context"
	"time"

	"receiptflow/internal/models"

	"github.com/Masterminds/squirrel"
)

// Aggregate answers a planned query over the user's stored receipts. Item
// sums use price * quantity + discount, matching the reconciliation math.
func (r *ReceiptRepository) Aggregate(ctx context.Context, userID string, spec models.QuerySpec) (*models.QueryResult, error) {
	result := &models.QueryResult{
		Spec:        spec,
		GeneratedAt: time.Now().UTC(),
	}

	var err error
	switch spec.Intent {
	case models.IntentByCategory:
		result.Rows, err = r.groupedRows(ctx, userID, spec, "i.category")
	case models.IntentByStore:
		result.Rows, err = r.storeRows(ctx, userID, spec)
	}
	if err != nil {
		return nil, err
	}

	if err := r.totals(ctx, userID, spec, result); err != nil {
		return nil, err
	}
	return result, nil
}

// groupedRows breaks item spending down by the given column.
func (r *ReceiptRepository) groupedRows(ctx context.Context, userID string, spec models.QuerySpec, column string) ([]models.QueryRow, error) {
	query := squirrel.Select(
		column,
		"COALESCE(SUM(i.price * i.quantity + i.discount), 0) AS spent",
		"COUNT(*)",
	).
		From("receipt_items i").
		Join("receipts r ON r.id = i.receipt_id").
		Where(squirrel.Eq{"r.user_id": userID}).
		GroupBy(column).
		OrderBy("spent DESC").
		PlaceholderFormat(squirrel.Dollar)
	query = r.scopeToPeriod(query, "r.purchasing_date", spec)
	if spec.Category != "" {
		query = query.Where(squirrel.Eq{"i.category": spec.Category})
	}
	return r.queryRows(ctx, query)
}

// storeRows breaks receipt totals down per store.
func (r *ReceiptRepository) storeRows(ctx context.Context, userID string, spec models.QuerySpec) ([]models.QueryRow, error) {
	query := squirrel.Select(
		"store_name",
		"COALESCE(SUM(total), 0) AS spent",
		"COUNT(*)",
	).
		From("receipts").
		Where(squirrel.Eq{"user_id": userID}).
		GroupBy("store_name").
		OrderBy("spent DESC").
		PlaceholderFormat(squirrel.Dollar)
	query = r.scopeToPeriod(query, "purchasing_date", spec)
	return r.queryRows(ctx, query)
}

// totals fills the overall sum and receipt count. A category filter moves
// the sum down to item level.
func (r *ReceiptRepository) totals(ctx context.Context, userID string, spec models.QuerySpec, result *models.QueryResult) error {
	var query squirrel.SelectBuilder
	if spec.Category != "" {
		query = squirrel.Select(
			"COALESCE(SUM(i.price * i.quantity + i.discount), 0)",
			"COUNT(DISTINCT r.id)",
		).
			From("receipt_items i").
			Join("receipts r ON r.id = i.receipt_id").
			Where(squirrel.Eq{"r.user_id": userID, "i.category": spec.Category}).
			PlaceholderFormat(squirrel.Dollar)
		query = r.scopeToPeriod(query, "r.purchasing_date", spec)
	} else {
		query = squirrel.Select("COALESCE(SUM(total), 0)", "COUNT(*)").
			From("receipts").
			Where(squirrel.Eq{"user_id": userID}).
			PlaceholderFormat(squirrel.Dollar)
		query = r.scopeToPeriod(query, "purchasing_date", spec)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}
	return r.db.QueryRow(ctx, sql, args...).Scan(&result.Total, &result.Count)
}

func (r *ReceiptRepository) scopeToPeriod(query squirrel.SelectBuilder, column string, spec models.QuerySpec) squirrel.SelectBuilder {
	if !spec.From.IsZero() {
		query = query.Where(squirrel.GtOrEq{column: spec.From})
	}
	if !spec.To.IsZero() {
		query = query.Where(squirrel.LtOrEq{column: spec.To})
	}
	return query
}

func (r *ReceiptRepository) queryRows(ctx context.Context, query squirrel.SelectBuilder) ([]models.QueryRow, error) {
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.QueryRow
	for rows.Next() {
		var row models.QueryRow
		if err := rows.Scan(&row.Label, &row.Total, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
