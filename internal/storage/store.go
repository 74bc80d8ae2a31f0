package storage

import (
	"context"
)

// ObjectStore holds raw and preprocessed receipt images. References are
// opaque object keys that flow through Documents and ReceiptRecords.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}
