package models

import (
	"time"
)

type PayloadKind string

const (
	PayloadImage   PayloadKind = "image"
	PayloadText    PayloadKind = "text"
	PayloadCommand PayloadKind = "command"
)

// InboundMessage is a single message delivered by the inbound transport.
// The transport is at-least-once; MessageID is the dedup fingerprint source.
type InboundMessage struct {
	MessageID  string
	UserID     string
	Kind       PayloadKind
	GroupID    string // album/media-group marker, empty for standalone messages
	Text       string
	ImageData  []byte // inline payload, drained into object storage on ingest
	ImageRef   string // set when the payload was already stored upstream
	ReceivedAt time.Time
}

// HasGroup reports whether the message belongs to a multi-image submission.
func (m *InboundMessage) HasGroup() bool {
	return m.GroupID != ""
}
