package ingest

import (
	"sync"
	"time"

	"receiptflow/internal/models"

	"go.uber.org/zap"
)

type Outcome string

const (
	// OutcomeAlbumOpen means the message joined an album still collecting images.
	OutcomeAlbumOpen Outcome = "album_open"
	// OutcomeFinalized means the message closed an album into a Document.
	OutcomeFinalized Outcome = "album_finalized"
	// OutcomeStandalone means the message became a one-image Document immediately.
	OutcomeStandalone Outcome = "standalone"
)

// Result is the outcome of offering one message to the assembler. Document
// is set for OutcomeFinalized and OutcomeStandalone.
type Result struct {
	Outcome  Outcome
	Document *models.Document
}

type openAlbum struct {
	groupID    string
	refs       []string
	receivedAt time.Time
	timer      *time.Timer
	finalized  bool
}

// Assembler groups images of one logical submission into a single Document.
// State is keyed per user; an album's deadline timer never outlives its
// owner entry and never crosses users.
type Assembler struct {
	mu     sync.Mutex
	open   map[string]*openAlbum // keyed by user ID
	window time.Duration
	sink   func(models.Document) // receives documents finalized off the Offer path
	logger *zap.Logger
}

// NewAssembler creates an assembler with the given assembly window. sink
// receives Documents finalized by deadline expiry or displaced by a newer
// submission; it must be safe for concurrent use.
func NewAssembler(window time.Duration, sink func(models.Document), logger *zap.Logger) *Assembler {
	return &Assembler{
		open:   make(map[string]*openAlbum),
		window: window,
		sink:   sink,
		logger: logger,
	}
}

// Offer routes one image message. Messages carrying a group marker open or
// extend an album; ungrouped images finalize any open album first and become
// a standalone Document.
func (a *Assembler) Offer(msg *models.InboundMessage) Result {
	result, displaced := a.offer(msg)
	// sink outside the lock; it may block on pipeline backpressure
	if displaced != nil {
		a.sink(*displaced)
	}
	return result
}

func (a *Assembler) offer(msg *models.InboundMessage) (Result, *models.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var displaced *models.Document
	current := a.open[msg.UserID]

	if !msg.HasGroup() {
		// An ungrouped image ends the previous submission, if any.
		if current != nil && !current.finalized {
			d := a.finalizeLocked(msg.UserID, current)
			displaced = &d
		}
		doc := models.NewDocument(msg.UserID, []string{msg.ImageRef}, msg.ReceivedAt)
		return Result{Outcome: OutcomeStandalone, Document: &doc}, displaced
	}

	if current != nil && current.groupID != msg.GroupID {
		// A new group marker starts a fresh submission.
		if !current.finalized {
			d := a.finalizeLocked(msg.UserID, current)
			displaced = &d
		}
		current = nil
	}

	if current == nil {
		album := &openAlbum{
			groupID:    msg.GroupID,
			refs:       []string{msg.ImageRef},
			receivedAt: msg.ReceivedAt,
		}
		album.timer = time.AfterFunc(a.window, func() {
			a.expire(msg.UserID, msg.GroupID)
		})
		a.open[msg.UserID] = album
		return Result{Outcome: OutcomeAlbumOpen}, displaced
	}

	current.refs = append(current.refs, msg.ImageRef)
	current.timer.Reset(a.window)
	return Result{Outcome: OutcomeAlbumOpen}, displaced
}

// Close finalizes the user's open album on an explicit close signal.
// Returns nil when there is nothing to finalize; safe to call concurrently
// with a firing deadline timer.
func (a *Assembler) Close(userID string) *models.Document {
	a.mu.Lock()
	defer a.mu.Unlock()

	album := a.open[userID]
	if album == nil || album.finalized {
		return nil
	}
	doc := a.finalizeLocked(userID, album)
	return &doc
}

// expire is the deadline path; finalize is idempotent, so a timer firing
// while Close or Offer already finalized the album is a no-op.
func (a *Assembler) expire(userID, groupID string) {
	a.mu.Lock()
	album := a.open[userID]
	if album == nil || album.finalized || album.groupID != groupID {
		a.mu.Unlock()
		return
	}
	doc := a.finalizeLocked(userID, album)
	a.mu.Unlock()

	a.logger.Debug("album finalized on deadline",
		zap.String("user_id", userID),
		zap.String("group_id", groupID),
		zap.Int("images", len(doc.Images)),
	)
	a.sink(doc)
}

func (a *Assembler) finalizeLocked(userID string, album *openAlbum) models.Document {
	album.finalized = true
	album.timer.Stop()
	delete(a.open, userID)
	return models.NewDocument(userID, album.refs, album.receivedAt)
}
