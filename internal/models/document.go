package models

import (
	"time"

	"github.com/google/uuid"
)

type PreprocessState string

const (
	PreprocessPending  PreprocessState = "pending"
	PreprocessDone     PreprocessState = "done"
	PreprocessDegraded PreprocessState = "degraded" // at least one image fell back to best effort
)

// ImageRef addresses one receipt image in object storage, in both its raw
// and preprocessed forms. References are opaque object keys.
type ImageRef struct {
	Raw        string
	Enhanced   string // empty until preprocessing ran
	BestEffort bool   // preprocessing failed, raw bytes are used as-is
}

// Document is one finalized logical receipt submission, possibly spanning
// several images. It is owned by exactly one pipeline worker and holds no
// persisted state until the receipt record is committed.
type Document struct {
	ID         uuid.UUID
	UserID     string
	Images     []ImageRef
	Composite  string // stitched single-page reference, empty unless stitching ran
	State      PreprocessState
	ReceivedAt time.Time
}

func NewDocument(userID string, rawRefs []string, receivedAt time.Time) Document {
	images := make([]ImageRef, len(rawRefs))
	for i, ref := range rawRefs {
		images[i] = ImageRef{Raw: ref}
	}
	return Document{
		ID:         uuid.New(),
		UserID:     userID,
		Images:     images,
		State:      PreprocessPending,
		ReceivedAt: receivedAt,
	}
}
