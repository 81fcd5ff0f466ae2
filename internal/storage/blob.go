package storage

import (
	"context"
	"io"
)

// BlobStore holds raw document content keyed by an opaque storage key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
