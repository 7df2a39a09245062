package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/lock"
	"github.com/prn-tf/barrett-share/internal/pkg/crypto"
	"github.com/prn-tf/barrett-share/internal/repository"
	"github.com/prn-tf/barrett-share/internal/storage"
)

const (
	// maxLinkIDAttempts bounds regeneration on link id collisions.
	// With 32 random base62 characters a single collision is already
	// astronomically unlikely; hitting the bound means a broken RNG.
	maxLinkIDAttempts = 5

	// linkCacheTTL is how long a resolved link id stays cached.
	linkCacheTTL = 5 * time.Minute

	// linkTombstoneTTL is how long a mutated link stays tombstoned.
	// It must outlast the window between a resolver's repository read and
	// its cache write, so a read that started before the mutation cannot
	// repopulate the cache with the pre-mutation record.
	linkTombstoneTTL = 10 * time.Second

	// mutationLockTTL bounds how long a file mutation lock is held.
	mutationLockTTL = 10 * time.Second

	lockRetries    = 3
	lockRetryDelay = 50 * time.Millisecond
)

// FileService handles upload, catalog, sharing, and download operations.
type FileService struct {
	fileRepo repository.FileRepository
	storage  storage.Backend
	cache    repository.Cache
	locker   lock.Locker
	hasher   *auth.PasswordHasher
	logger   zerolog.Logger
}

// NewFileService creates a new FileService.
func NewFileService(
	fileRepo repository.FileRepository,
	backend storage.Backend,
	cache repository.Cache,
	locker lock.Locker,
	hasher *auth.PasswordHasher,
	logger zerolog.Logger,
) *FileService {
	return &FileService{
		fileRepo: fileRepo,
		storage:  backend,
		cache:    cache,
		locker:   locker,
		hasher:   hasher,
		logger:   logger.With().Str("service", "file").Logger(),
	}
}

// =============================================================================
// Input/Output Structs
// =============================================================================

// UploadInput contains the data needed to store a new file.
type UploadInput struct {
	OwnerID       int64
	OwnerUsername string
	Filename      string
	ContentType   string
	Body          io.Reader
	Size          int64
}

// UploadOutput contains the created file record.
type UploadOutput struct {
	File *domain.FileRecord
}

// UpdatePermissionInput contains a permission transition request.
type UpdatePermissionInput struct {
	OwnerID    int64
	FileID     int64
	Permission domain.Permission

	// Password is the new file password; required iff Permission is protected.
	Password string
}

// DownloadInput contains the data needed to resolve and stream a file.
type DownloadInput struct {
	LinkID   string
	Caller   *auth.Identity
	Password string
}

// DownloadOutput contains the stream and the metadata needed for response
// headers. Body must be closed by the caller.
type DownloadOutput struct {
	Body io.ReadCloser
	File *domain.FileRecord
}

// =============================================================================
// Service Methods
// =============================================================================

// Upload stores the file bytes and creates the catalog record.
// The blob is written before the record so a failed upload never leaves a
// dangling catalog entry; a failed record insert removes the blob again.
func (s *FileService) Upload(ctx context.Context, input UploadInput) (*UploadOutput, error) {
	if input.Filename == "" {
		return nil, ErrEmptyFilename
	}
	if input.Size == 0 {
		return nil, ErrEmptyFile
	}
	contentType := input.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	storageRef, err := crypto.GenerateStorageKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	written, err := s.storage.Store(ctx, storageRef, input.Body, input.Size)
	if err != nil {
		if errors.Is(err, domain.ErrSizeMismatch) || errors.Is(err, domain.ErrStorageFull) {
			return nil, err
		}
		s.logger.Error().Err(err).Str("filename", input.Filename).Msg("failed to store upload")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	file, err := s.createRecord(ctx, input, contentType, storageRef, written)
	if err != nil {
		// Roll the blob back; the catalog never saw it.
		if delErr := s.storage.Delete(ctx, storageRef); delErr != nil {
			s.logger.Error().Err(delErr).Str("storage_ref", storageRef).Msg("failed to clean up orphaned blob")
		}
		return nil, err
	}

	s.logger.Info().
		Int64("file_id", file.ID).
		Int64("owner_id", file.OwnerID).
		Str("filename", file.OriginalFilename).
		Int64("size", file.Size).
		Msg("file uploaded")

	return &UploadOutput{File: file}, nil
}

// createRecord inserts the catalog row, regenerating the link id on the
// (practically impossible) collision with a live or retired id.
func (s *FileService) createRecord(ctx context.Context, input UploadInput, contentType, storageRef string, size int64) (*domain.FileRecord, error) {
	for attempt := 0; attempt < maxLinkIDAttempts; attempt++ {
		linkID, err := crypto.GenerateLinkID()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}

		file := domain.NewFileRecord(input.OwnerID, input.OwnerUsername, input.Filename, contentType, linkID, storageRef, size)
		err = s.fileRepo.Create(ctx, file)
		if err == nil {
			return file, nil
		}
		if errors.Is(err, domain.ErrLinkIDCollision) {
			s.logger.Warn().Str("link_id", linkID).Msg("link id collision, regenerating")
			continue
		}
		s.logger.Error().Err(err).Str("filename", input.Filename).Msg("failed to create file record")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	return nil, fmt.Errorf("%w: link id generation kept colliding", ErrInternalError)
}

// List returns the caller's files, newest first, as public-safe projections.
func (s *FileService) List(ctx context.Context, ownerID int64) ([]domain.FileListItem, error) {
	files, err := s.fileRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error().Err(err).Int64("owner_id", ownerID).Msg("failed to list files")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	items := make([]domain.FileListItem, 0, len(files))
	for _, f := range files {
		items = append(items, f.ListItem())
	}
	return items, nil
}

// GetDetail returns the full record for a file the caller owns.
func (s *FileService) GetDetail(ctx context.Context, ownerID, fileID int64) (*domain.FileRecord, error) {
	return s.getOwned(ctx, ownerID, fileID)
}

// UpdatePermission applies a permission transition to an owned file.
// The per-file lock serializes concurrent transitions so the
// hash-iff-protected invariant holds under racing requests.
func (s *FileService) UpdatePermission(ctx context.Context, input UpdatePermissionInput) (*domain.FileRecord, error) {
	file, err := s.getOwned(ctx, input.OwnerID, input.FileID)
	if err != nil {
		return nil, err
	}

	var passwordHash *string
	if input.Permission == domain.PermissionProtected {
		password := strings.TrimSpace(input.Password)
		if password == "" {
			return nil, domain.ErrPasswordRequired
		}
		hash, err := s.hasher.Hash(password)
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to hash file password")
			return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
		}
		passwordHash = &hash
	}

	lockKey := lock.Keys.FileMutation(input.FileID)
	acquired, err := s.locker.AcquireWithRetry(ctx, lockKey, mutationLockTTL, lockRetries, lockRetryDelay)
	if err != nil {
		s.logger.Error().Err(err).Int64("file_id", input.FileID).Msg("failed to acquire permission lock")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !acquired {
		return nil, ErrConcurrentUpdate
	}
	defer func() {
		if _, err := s.locker.Release(ctx, lockKey); err != nil {
			s.logger.Warn().Err(err).Str("lock_key", lockKey).Msg("failed to release lock")
		}
	}()

	if err := s.fileRepo.UpdatePermission(ctx, input.FileID, input.Permission, passwordHash); err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			return nil, domain.ErrFileNotFound
		}
		s.logger.Error().Err(err).Int64("file_id", input.FileID).Msg("failed to update permission")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidateLink(ctx, file.LinkID)

	file.SetPermission(input.Permission, passwordHash)

	s.logger.Info().
		Int64("file_id", file.ID).
		Str("permission", string(file.Permission)).
		Msg("permission updated")

	return file, nil
}

// Delete removes an owned file from the catalog and the blob store.
// The link id is retired by the repository and never comes back; the blob
// delete runs after the catalog commit and is logged, not surfaced, on
// failure since the record is already gone.
func (s *FileService) Delete(ctx context.Context, ownerID, fileID int64) error {
	file, err := s.getOwned(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	lockKey := lock.Keys.FileMutation(fileID)
	acquired, err := s.locker.AcquireWithRetry(ctx, lockKey, mutationLockTTL, lockRetries, lockRetryDelay)
	if err != nil {
		s.logger.Error().Err(err).Int64("file_id", fileID).Msg("failed to acquire delete lock")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if !acquired {
		return ErrConcurrentUpdate
	}
	defer func() {
		if _, err := s.locker.Release(ctx, lockKey); err != nil {
			s.logger.Warn().Err(err).Str("lock_key", lockKey).Msg("failed to release lock")
		}
	}()

	if err := s.fileRepo.Delete(ctx, fileID); err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			return domain.ErrFileNotFound
		}
		s.logger.Error().Err(err).Int64("file_id", fileID).Msg("failed to delete file record")
		return fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	s.invalidateLink(ctx, file.LinkID)

	if err := s.storage.Delete(ctx, file.StorageRef); err != nil {
		s.logger.Error().Err(err).Str("storage_ref", file.StorageRef).Msg("failed to delete blob")
	}

	s.logger.Info().
		Int64("file_id", fileID).
		Int64("owner_id", ownerID).
		Str("link_id", file.LinkID).
		Msg("file deleted")

	return nil
}

// Download resolves a link id, evaluates access, and opens the blob stream.
func (s *FileService) Download(ctx context.Context, input DownloadInput) (*DownloadOutput, error) {
	file, err := s.resolveLink(ctx, input.LinkID)
	if err != nil {
		return nil, err
	}

	if err := EvaluateAccess(file, AccessRequest{Caller: input.Caller, Password: input.Password}, s.hasher); err != nil {
		s.logger.Debug().
			Err(err).
			Str("link_id", input.LinkID).
			Str("permission", string(file.Permission)).
			Msg("download denied")
		return nil, err
	}

	body, err := s.storage.Retrieve(ctx, file.StorageRef)
	if err != nil {
		if errors.Is(err, domain.ErrBlobNotFound) {
			// Catalog row without bytes: surface as not found, the link
			// is unusable either way.
			s.logger.Error().Str("link_id", input.LinkID).Str("storage_ref", file.StorageRef).Msg("catalog record has no blob")
			return nil, domain.ErrLinkNotFound
		}
		s.logger.Error().Err(err).Str("link_id", input.LinkID).Msg("failed to open blob")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	return &DownloadOutput{Body: body, File: file}, nil
}

// =============================================================================
// Internals
// =============================================================================

// getOwned loads a record and enforces ownership.
func (s *FileService) getOwned(ctx context.Context, ownerID, fileID int64) (*domain.FileRecord, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrFileNotFound) {
			return nil, domain.ErrFileNotFound
		}
		s.logger.Error().Err(err).Int64("file_id", fileID).Msg("failed to get file record")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}
	if file.OwnerID != ownerID {
		return nil, domain.ErrNotOwner
	}
	return file, nil
}

// cachedFile is the cache representation of a resolved link.
// The json:"-" fields of FileRecord must survive the round trip here,
// so the record is flattened into an internal-only shape.
type cachedFile struct {
	ID               int64             `json:"id"`
	OwnerID          int64             `json:"owner_id"`
	OwnerUsername    string            `json:"owner_username"`
	OriginalFilename string            `json:"original_filename"`
	ContentType      string            `json:"content_type"`
	Size             int64             `json:"size"`
	UploadTime       time.Time         `json:"upload_time"`
	LinkID           string            `json:"link_id"`
	Permission       domain.Permission `json:"permission"`
	PasswordHash     *string           `json:"password_hash"`
	StorageRef       string            `json:"storage_ref"`
}

func linkCacheKey(linkID string) string {
	return "file:link:" + linkID
}

// linkTombstone marks a link whose record was just mutated. It cannot be
// confused with a cachedFile payload, which always starts with '{'.
var linkTombstone = []byte("!")

// resolveLink loads a record by link id, consulting the cache first.
// Cache failures degrade to repository lookups.
func (s *FileService) resolveLink(ctx context.Context, linkID string) (*domain.FileRecord, error) {
	key := linkCacheKey(linkID)

	if data, err := s.cache.Get(ctx, key); err == nil {
		if bytes.Equal(data, linkTombstone) {
			return s.resolveLinkFromRepo(ctx, linkID, key)
		}
		var cached cachedFile
		if err := json.Unmarshal(data, &cached); err == nil {
			return &domain.FileRecord{
				ID:               cached.ID,
				OwnerID:          cached.OwnerID,
				OwnerUsername:    cached.OwnerUsername,
				OriginalFilename: cached.OriginalFilename,
				ContentType:      cached.ContentType,
				Size:             cached.Size,
				UploadTime:       cached.UploadTime,
				LinkID:           cached.LinkID,
				Permission:       cached.Permission,
				PasswordHash:     cached.PasswordHash,
				StorageRef:       cached.StorageRef,
			}, nil
		}
		s.logger.Warn().Str("link_id", linkID).Msg("corrupt cache entry, falling back to repository")
	} else if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.Warn().Err(err).Msg("cache unavailable, falling back to repository")
	}

	return s.resolveLinkFromRepo(ctx, linkID, key)
}

// resolveLinkFromRepo reads the authoritative record and caches it.
// The write is SetNX so it can never clobber a tombstone left by a
// concurrent mutation; a read that raced the mutation simply stays
// uncached.
func (s *FileService) resolveLinkFromRepo(ctx context.Context, linkID, key string) (*domain.FileRecord, error) {
	file, err := s.fileRepo.GetByLinkID(ctx, linkID)
	if err != nil {
		if errors.Is(err, domain.ErrLinkNotFound) {
			return nil, domain.ErrLinkNotFound
		}
		s.logger.Error().Err(err).Str("link_id", linkID).Msg("failed to resolve link")
		return nil, fmt.Errorf("%w: %v", ErrInternalError, err)
	}

	cached := cachedFile{
		ID:               file.ID,
		OwnerID:          file.OwnerID,
		OwnerUsername:    file.OwnerUsername,
		OriginalFilename: file.OriginalFilename,
		ContentType:      file.ContentType,
		Size:             file.Size,
		UploadTime:       file.UploadTime,
		LinkID:           file.LinkID,
		Permission:       file.Permission,
		PasswordHash:     file.PasswordHash,
		StorageRef:       file.StorageRef,
	}
	if data, err := json.Marshal(cached); err == nil {
		if _, err := s.cache.SetNX(ctx, key, data, linkCacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cache resolved link")
		}
	}

	return file, nil
}

// invalidateLink tombstones a cached link resolution after a mutation.
// An unconditional delete would leave a window where a resolver that read
// the repository just before the mutation committed repopulates the cache
// with the old record; the tombstone blocks that write for its TTL.
func (s *FileService) invalidateLink(ctx context.Context, linkID string) {
	if err := s.cache.Set(ctx, linkCacheKey(linkID), linkTombstone, linkTombstoneTTL); err != nil {
		s.logger.Warn().Err(err).Str("link_id", linkID).Msg("failed to invalidate link cache")
	}
}
