// Package fault defines the pipeline failure taxonomy. Every stage wraps its
// errors into a classified *Error before returning; the coordinator is the
// only place that turns a classification into retry, escalate or terminate.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindTransportDuplicate marks a redelivered message; absorbed silently.
	KindTransportDuplicate Kind = "transport_duplicate"
	// KindTransient covers timeouts and backend 5xx-equivalents; retried at
	// the same strategy with backoff before escalation is considered.
	KindTransient Kind = "transient"
	// KindRecoverableExtraction escalates the strategy immediately
	// (low confidence, malformed structured output).
	KindRecoverableExtraction Kind = "recoverable_extraction"
	// KindUnrecoverableExtraction is terminal (input rejected, quota/policy
	// error on the backend side).
	KindUnrecoverableExtraction Kind = "unrecoverable_extraction"
	// KindValidation escalates the strategy unless already exhausted.
	KindValidation Kind = "validation"
	// KindQuotaExceeded is terminal and user-visible; never retried.
	KindQuotaExceeded Kind = "quota_exceeded"
	// KindStorage is retried with backoff, then terminal.
	KindStorage Kind = "storage"
)

// Error carries a failure classification alongside the stage that produced it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a classification. A nil err is allowed for failures
// that have no underlying cause (e.g. a quota check).
func New(kind Kind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

func Newf(kind Kind, stage, format string, args ...any) *Error {
	return &Error{Kind: kind, Stage: stage, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err. Unclassified errors are
// treated as transient so the coordinator's retry bound applies to them.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// Terminal reports whether the classification permits no further automatic
// retry or escalation.
func Terminal(kind Kind) bool {
	return kind == KindUnrecoverableExtraction || kind == KindQuotaExceeded
}
