package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"receiptflow/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// DurableSet records fingerprints across process restarts. Insert reports
// whether the fingerprint was new; a false return means another delivery
// already claimed it.
type DurableSet interface {
	Insert(ctx context.Context, fingerprint, userID string) (bool, error)
	Remove(ctx context.Context, fingerprint string) error
}

// Gate absorbs redeliveries from the at-least-once inbound transport. The
// in-memory LRU is the fast path; the durable set survives restarts while
// unacked deliveries are still in flight. The mutex makes check-and-record
// atomic, so two concurrent deliveries of one message cannot both pass.
type Gate struct {
	mu      sync.Mutex
	seen    *expirable.LRU[string, time.Time]
	durable DurableSet
	logger  *zap.Logger
}

// NewGate creates a gate with the given LRU capacity and retention window.
// durable may be nil, leaving only the in-memory layer.
func NewGate(capacity int, retention time.Duration, durable DurableSet, logger *zap.Logger) *Gate {
	return &Gate{
		seen:    expirable.NewLRU[string, time.Time](capacity, nil, retention),
		durable: durable,
		logger:  logger,
	}
}

// Admit returns false when the message is a duplicate delivery. Duplicates
// are acknowledged as handled by the caller without re-processing. A durable
// layer error fails open: the delivery is admitted and the commit path's
// idempotency is the last line of defense.
func (g *Gate) Admit(ctx context.Context, msg *models.InboundMessage) bool {
	fp := Fingerprint(msg)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.seen.Get(fp); dup {
		g.logger.Debug("duplicate message absorbed",
			zap.String("fingerprint", fp),
			zap.String("user_id", msg.UserID),
		)
		return false
	}

	if g.durable != nil {
		inserted, err := g.durable.Insert(ctx, fp, msg.UserID)
		if err != nil {
			g.logger.Warn("durable dedup unavailable, admitting",
				zap.String("fingerprint", fp),
				zap.Error(err),
			)
		} else if !inserted {
			g.logger.Debug("duplicate message absorbed by durable set",
				zap.String("fingerprint", fp),
				zap.String("user_id", msg.UserID),
			)
			g.seen.Add(fp, time.Now())
			return false
		}
	}

	g.seen.Add(fp, time.Now())
	return true
}

// Forget removes a fingerprint so a redelivery can be reprocessed. Used
// when ingest failed after Admit but before any downstream effect.
func (g *Gate) Forget(ctx context.Context, fingerprint string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seen.Remove(fingerprint)
	if g.durable != nil {
		if err := g.durable.Remove(ctx, fingerprint); err != nil {
			g.logger.Warn("durable fingerprint removal failed",
				zap.String("fingerprint", fingerprint),
				zap.Error(err),
			)
		}
	}
}

// Fingerprint derives a stable identity from the message alone: the source
// message ID when present, otherwise a content hash covering redelivered
// payloads that lost their ID in transit.
func Fingerprint(msg *models.InboundMessage) string {
	if msg.MessageID != "" {
		return msg.MessageID
	}
	h := sha256.New()
	h.Write([]byte(msg.UserID))
	h.Write([]byte(msg.Text))
	h.Write([]byte(msg.ImageRef))
	h.Write(msg.ImageData)
	return hex.EncodeToString(h.Sum(nil))
}
