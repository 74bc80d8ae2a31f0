package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// MessageRepository is the durable half of the ingest dedup gate: one row
// per processed inbound message, keyed by fingerprint.
type MessageRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewMessageRepository(db *pgxpool.Pool, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{db: db, logger: logger}
}

// Insert claims the fingerprint. Returns false when another delivery
// already holds it; the conflict target makes the claim atomic across
// processes.
func (r *MessageRepository) Insert(ctx context.Context, fingerprint, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO processed_messages (fingerprint, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		fingerprint, userID,
	)
	if err != nil {
		return false, fmt.Errorf("claim fingerprint: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Remove releases a fingerprint after a failed ingest so the redelivery is
// processed instead of absorbed.
func (r *MessageRepository) Remove(ctx context.Context, fingerprint string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM processed_messages WHERE fingerprint = $1`,
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("release fingerprint: %w", err)
	}
	return nil
}

// PurgeOlderThan trims fingerprints past the queue's redelivery horizon.
// Run periodically; rows older than the retention window can never match a
// live redelivery.
func (r *MessageRepository) PurgeOlderThan(ctx context.Context, ageSeconds int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM processed_messages
		 WHERE processed_at < NOW() - make_interval(secs => $1)`,
		ageSeconds,
	)
	if err != nil {
		return 0, fmt.Errorf("purge fingerprints: %w", err)
	}
	return tag.RowsAffected(), nil
}
