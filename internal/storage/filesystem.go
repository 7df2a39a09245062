package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/domain"
)

// FilesystemBackend implements Backend using the local filesystem.
// Files are written to a temp directory first and renamed into their
// sharded final location, so a crash mid-upload never leaves a partial
// blob visible under a live key.
type FilesystemBackend struct {
	pathConfig PathConfig
	tempDir    string
	logger     zerolog.Logger
}

// NewFilesystemBackend creates a filesystem backend rooted at dataDir.
// tempDir should be on the same filesystem as dataDir so renames are atomic.
func NewFilesystemBackend(dataDir, tempDir string, logger zerolog.Logger) (*FilesystemBackend, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(tempDir, 0o750); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	return &FilesystemBackend{
		pathConfig: DefaultPathConfig(dataDir),
		tempDir:    tempDir,
		logger:     logger.With().Str("component", "storage.filesystem").Logger(),
	}, nil
}

// Store writes the stream to a temp file, verifies its length, and moves it
// into place under the sharded path for key.
func (b *FilesystemBackend) Store(ctx context.Context, key string, reader io.Reader, size int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(b.tempDir, "upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up the temp file on any failure path.
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	written, err := io.Copy(tmp, reader)
	if err != nil {
		cleanup()
		if errors.Is(err, fs.ErrPermission) || isNoSpace(err) {
			return 0, fmt.Errorf("%w: %v", domain.ErrStorageFull, err)
		}
		return 0, fmt.Errorf("write blob: %w", err)
	}

	if size >= 0 && written != size {
		cleanup()
		return 0, fmt.Errorf("%w: expected %d bytes, wrote %d", domain.ErrSizeMismatch, size, written)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("close blob: %w", err)
	}

	finalPath := ComputePath(b.pathConfig, key)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o750); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("create shard dir: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("finalize blob: %w", err)
	}

	b.logger.Debug().
		Str("key", key).
		Int64("size", written).
		Msg("blob stored")

	return written, nil
}

// Retrieve opens the blob for the given key.
func (b *FilesystemBackend) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(ComputePath(b.pathConfig, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob for the given key. Missing blobs are ignored.
func (b *FilesystemBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(ComputePath(b.pathConfig, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}

	b.logger.Debug().Str("key", key).Msg("blob deleted")
	return nil
}

// Exists checks whether a blob exists for the given key.
func (b *FilesystemBackend) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := os.Stat(ComputePath(b.pathConfig, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}

// GetSize returns the size of the blob for the given key.
func (b *FilesystemBackend) GetSize(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(ComputePath(b.pathConfig, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, domain.ErrBlobNotFound
		}
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	return info.Size(), nil
}

// GetPath returns the on-disk path for a key.
func (b *FilesystemBackend) GetPath(key string) string {
	return ComputePath(b.pathConfig, key)
}

// Stats walks the data directory and reports blob count and total size.
func (b *FilesystemBackend) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := filepath.WalkDir(b.pathConfig.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.TotalBlobs++
		stats.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data dir: %w", err)
	}

	return stats, nil
}

// isNoSpace reports whether err indicates a full filesystem.
func isNoSpace(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err.Error() == "no space left on device"
	}
	return false
}

// Ensure FilesystemBackend implements Backend and StatsProvider.
var (
	_ Backend       = (*FilesystemBackend)(nil)
	_ StatsProvider = (*FilesystemBackend)(nil)
)
