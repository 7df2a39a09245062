// Package storage defines interfaces for blob storage backends.
// The storage layer is responsible for persisting and retrieving raw file data.
// Each stored file is addressed by an opaque, randomly generated storage key;
// the mapping between catalog records and keys lives in the database.
package storage

import (
	"context"
	"io"
)

// Backend defines the interface for storage backends.
// Implementations can include local filesystem, NAS, S3, or other storage systems.
// The interface is designed to be stateless and support horizontal scaling.
type Backend interface {
	// Store stores content from a reader under the given storage key.
	// The write is atomic: readers never observe a partially written file.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Storage key to store the content under (hex, see crypto.GenerateStorageKey)
	//   - reader: Source of the content to store
	//   - size: Expected size in bytes (for validation and preallocation)
	//
	// Returns:
	//   - written: Actual number of bytes written
	//   - err: ErrSizeMismatch if the stream length differs from size, or other error
	Store(ctx context.Context, key string, reader io.Reader, size int64) (written int64, err error)

	// Retrieve retrieves content by its storage key.
	// Returns a ReadCloser that must be closed after use.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - key: Storage key of the content to retrieve
	//
	// Returns:
	//   - io.ReadCloser: Stream of the content (caller must close)
	//   - err: ErrBlobNotFound if content doesn't exist, or other error
	Retrieve(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes content by its storage key.
	// Deleting a key that doesn't exist is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if content with the given storage key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// GetSize returns the size of stored content.
	// Returns ErrBlobNotFound if the key doesn't exist.
	GetSize(ctx context.Context, key string) (int64, error)

	// GetPath returns the backend-internal location for a storage key.
	// This is useful for debugging and operational tooling.
	GetPath(key string) string
}

// StatsProvider is implemented by backends that can report usage statistics.
// The filesystem backend supports it; remote backends may not.
type StatsProvider interface {
	// Stats returns storage statistics.
	Stats(ctx context.Context) (*Stats, error)
}

// Stats contains storage backend statistics.
type Stats struct {
	// TotalBlobs is the number of blobs stored.
	TotalBlobs int64 `json:"total_blobs"`

	// TotalSize is the total size of all blobs in bytes.
	TotalSize int64 `json:"total_size"`
}
