// Package blob keeps generated files, such as log reports, under a root directory.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned for keys that hold no blob.
var ErrNotFound = errors.New("blob not found")

type BlobStore interface {
	// Put stores content under key, replacing any previous blob.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get opens the blob stored under key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// List returns the sorted keys under prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes a blob.
	Delete(ctx context.Context, key string) error
}
