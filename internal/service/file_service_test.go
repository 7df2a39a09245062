package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/cache/memory"
	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/lock"
	"github.com/prn-tf/barrett-share/internal/pkg/crypto"
)

type fileServiceFixture struct {
	svc     *FileService
	repo    *MockFileRepository
	backend *MockStorageBackend
	cache   *memory.Cache
}

func newFileServiceFixture(t *testing.T) *fileServiceFixture {
	t.Helper()

	repo := NewMockFileRepository()
	backend := NewMockStorageBackend()
	cache := memory.NewCache()
	t.Cleanup(cache.Stop)

	svc := NewFileService(repo, backend, cache, lock.NewMemoryLocker(), auth.NewPasswordHasher(), zerolog.Nop())
	return &fileServiceFixture{svc: svc, repo: repo, backend: backend, cache: cache}
}

func (f *fileServiceFixture) upload(t *testing.T, ownerID int64, username, filename, content string) *domain.FileRecord {
	t.Helper()

	output, err := f.svc.Upload(context.Background(), UploadInput{
		OwnerID:       ownerID,
		OwnerUsername: username,
		Filename:      filename,
		ContentType:   "text/plain",
		Body:          strings.NewReader(content),
		Size:          int64(len(content)),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return output.File
}

func TestFileService_Upload(t *testing.T) {
	f := newFileServiceFixture(t)

	file := f.upload(t, 1, "alice", "hello.txt", "hello world")

	if file.ID == 0 {
		t.Error("expected file ID to be assigned")
	}
	if len(file.LinkID) != crypto.LinkIDLength {
		t.Errorf("unexpected link id length: %d", len(file.LinkID))
	}
	if file.Permission != domain.PermissionPrivate {
		t.Errorf("expected private default, got %s", file.Permission)
	}
	if file.Size != 11 {
		t.Errorf("unexpected size: %d", file.Size)
	}
	if f.backend.BlobCount() != 1 {
		t.Errorf("expected 1 blob, got %d", f.backend.BlobCount())
	}
}

func TestFileService_Upload_Validation(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, UploadInput{OwnerID: 1, Filename: "", Body: strings.NewReader("x"), Size: 1})
	if !errors.Is(err, ErrEmptyFilename) {
		t.Fatalf("expected ErrEmptyFilename, got %v", err)
	}

	_, err = f.svc.Upload(ctx, UploadInput{OwnerID: 1, Filename: "empty.txt", Body: strings.NewReader(""), Size: 0})
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestFileService_Upload_SizeMismatchCleansUp(t *testing.T) {
	f := newFileServiceFixture(t)

	_, err := f.svc.Upload(context.Background(), UploadInput{
		OwnerID:  1,
		Filename: "truncated.txt",
		Body:     strings.NewReader("short"),
		Size:     1000,
	})
	if !errors.Is(err, domain.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if f.backend.BlobCount() != 0 {
		t.Errorf("expected no blobs after failed upload, got %d", f.backend.BlobCount())
	}
}

func TestFileService_Upload_RecordFailureCleansUpBlob(t *testing.T) {
	f := newFileServiceFixture(t)
	f.repo.createErr = errors.New("db down")

	_, err := f.svc.Upload(context.Background(), UploadInput{
		OwnerID:  1,
		Filename: "doomed.txt",
		Body:     strings.NewReader("data"),
		Size:     4,
	})
	if !errors.Is(err, ErrInternalError) {
		t.Fatalf("expected ErrInternalError, got %v", err)
	}
	if f.backend.BlobCount() != 0 {
		t.Errorf("expected orphaned blob to be removed, got %d", f.backend.BlobCount())
	}
}

func TestFileService_List_OwnerScoped(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	f.upload(t, 1, "alice", "a1.txt", "one")
	f.upload(t, 1, "alice", "a2.txt", "two")
	f.upload(t, 2, "bob", "b1.txt", "three")

	items, err := f.svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	// Newest first.
	if items[0].OriginalFilename != "a2.txt" {
		t.Errorf("expected a2.txt first, got %s", items[0].OriginalFilename)
	}

	empty, err := f.svc.List(ctx, 99)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list, got %d items", len(empty))
	}
}

func TestFileService_GetDetail(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "detail.txt", "content")

	got, err := f.svc.GetDetail(ctx, 1, file.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OriginalFilename != "detail.txt" {
		t.Errorf("unexpected filename: %s", got.OriginalFilename)
	}

	_, err = f.svc.GetDetail(ctx, 2, file.ID)
	if !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	_, err = f.svc.GetDetail(ctx, 1, 9999)
	if !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestFileService_UpdatePermission(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "share.txt", "content")

	t.Run("to public", func(t *testing.T) {
		updated, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
			OwnerID: 1, FileID: file.ID, Permission: domain.PermissionPublic,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.Permission != domain.PermissionPublic {
			t.Errorf("expected public, got %s", updated.Permission)
		}
		if updated.PasswordHash != nil {
			t.Error("public file must not carry a password hash")
		}
	})

	t.Run("to protected requires password", func(t *testing.T) {
		_, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
			OwnerID: 1, FileID: file.ID, Permission: domain.PermissionProtected,
		})
		if !errors.Is(err, domain.ErrPasswordRequired) {
			t.Fatalf("expected ErrPasswordRequired, got %v", err)
		}
	})

	t.Run("to protected hashes password", func(t *testing.T) {
		updated, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
			OwnerID: 1, FileID: file.ID, Permission: domain.PermissionProtected, Password: "filepass",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.PasswordHash == nil {
			t.Fatal("expected a password hash")
		}
		if *updated.PasswordHash == "filepass" {
			t.Error("file password stored in plaintext")
		}
	})

	t.Run("back to private clears hash", func(t *testing.T) {
		updated, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
			OwnerID: 1, FileID: file.ID, Permission: domain.PermissionPrivate,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if updated.PasswordHash != nil {
			t.Error("private file must not carry a password hash")
		}
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		_, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
			OwnerID: 2, FileID: file.ID, Permission: domain.PermissionPublic,
		})
		if !errors.Is(err, domain.ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})
}

func TestFileService_UpdatePermission_ConcurrentTransitions(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "contended.txt", "content")

	// Race protected and public transitions on the same record. Losing
	// the lock surfaces as ErrConcurrentUpdate, which is fine; what must
	// never happen is a record left protected without a password hash.
	const workers = 6
	const rounds = 4

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				input := UpdatePermissionInput{
					OwnerID: 1, FileID: file.ID, Permission: domain.PermissionPublic,
				}
				if (w+r)%2 == 0 {
					input.Permission = domain.PermissionProtected
					input.Password = "filepass"
				}
				if _, err := f.svc.UpdatePermission(ctx, input); err != nil && !errors.Is(err, ErrConcurrentUpdate) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	final, err := f.repo.GetByID(ctx, file.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Permission == domain.PermissionProtected && final.PasswordHash == nil {
		t.Error("record left protected without a password hash")
	}
	if final.Permission != domain.PermissionProtected && final.PasswordHash != nil {
		t.Error("record left unprotected with a password hash")
	}
}

func TestFileService_Delete(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "gone.txt", "content")

	t.Run("non-owner rejected", func(t *testing.T) {
		err := f.svc.Delete(ctx, 2, file.ID)
		if !errors.Is(err, domain.ErrNotOwner) {
			t.Fatalf("expected ErrNotOwner, got %v", err)
		}
	})

	t.Run("owner deletes record and blob", func(t *testing.T) {
		if err := f.svc.Delete(ctx, 1, file.ID); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.backend.BlobCount() != 0 {
			t.Errorf("expected blob removed, got %d", f.backend.BlobCount())
		}
		_, err := f.svc.GetDetail(ctx, 1, file.ID)
		if !errors.Is(err, domain.ErrFileNotFound) {
			t.Fatalf("expected ErrFileNotFound, got %v", err)
		}
	})

	t.Run("deleted link resolves nowhere", func(t *testing.T) {
		_, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID})
		if !errors.Is(err, domain.ErrLinkNotFound) {
			t.Fatalf("expected ErrLinkNotFound, got %v", err)
		}
	})
}

func TestFileService_Download(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "dl.txt", "download me")
	owner := &auth.Identity{UserID: 1, Username: "alice"}
	stranger := &auth.Identity{UserID: 2, Username: "bob"}

	t.Run("private owner can download", func(t *testing.T) {
		output, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID, Caller: owner})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer output.Body.Close()

		data, err := io.ReadAll(output.Body)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(data) != "download me" {
			t.Errorf("unexpected content: %q", data)
		}
		if output.File.ContentType != "text/plain" {
			t.Errorf("unexpected content type: %s", output.File.ContentType)
		}
	})

	t.Run("private anonymous denied", func(t *testing.T) {
		_, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID})
		if !errors.Is(err, domain.ErrAccessDenied) {
			t.Fatalf("expected ErrAccessDenied, got %v", err)
		}
	})

	t.Run("private non-owner denied", func(t *testing.T) {
		_, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID, Caller: stranger})
		if !errors.Is(err, domain.ErrAccessDenied) {
			t.Fatalf("expected ErrAccessDenied, got %v", err)
		}
	})

	t.Run("unknown link", func(t *testing.T) {
		_, err := f.svc.Download(ctx, DownloadInput{LinkID: "nonexistent-link-id"})
		if !errors.Is(err, domain.ErrLinkNotFound) {
			t.Fatalf("expected ErrLinkNotFound, got %v", err)
		}
	})
}

func TestFileService_Download_PermissionChangeTakesEffect(t *testing.T) {
	// A cached link resolution must not outlive a permission change.
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "toggle.txt", "content")

	_, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
		OwnerID: 1, FileID: file.ID, Permission: domain.PermissionPublic,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Anonymous download populates the cache.
	output, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output.Body.Close()

	// Flip back to private; the cached public resolution must be dropped.
	_, err = f.svc.UpdatePermission(ctx, UpdatePermissionInput{
		OwnerID: 1, FileID: file.ID, Permission: domain.PermissionPrivate,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	_, err = f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied after revoke, got %v", err)
	}
}

func TestFileService_Download_StaleResolveCannotRepopulateCache(t *testing.T) {
	// A resolver that read the database just before a permission change
	// committed would try to cache the old record after the mutation's
	// invalidation. The tombstone left by the mutation must win that race.
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "racy.txt", "content")
	key := linkCacheKey(file.LinkID)

	_, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
		OwnerID: 1, FileID: file.ID, Permission: domain.PermissionPublic,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Anonymous download populates the cache with the public record;
	// capture those bytes to replay as the straggling writer.
	output, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	output.Body.Close()
	stale, err := f.cache.Get(ctx, key)
	if err != nil {
		t.Fatalf("expected cached resolution: %v", err)
	}

	_, err = f.svc.UpdatePermission(ctx, UpdatePermissionInput{
		OwnerID: 1, FileID: file.ID, Permission: domain.PermissionPrivate,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// The straggler writes the way resolveLink does; the tombstone must
	// block it.
	ok, err := f.cache.SetNX(ctx, key, stale, time.Minute)
	if err != nil {
		t.Fatalf("setnx: %v", err)
	}
	if ok {
		t.Fatal("stale record overwrote the tombstone")
	}

	_, err = f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID})
	if !errors.Is(err, domain.ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied after revoke, got %v", err)
	}
}

func TestFileService_Download_Protected(t *testing.T) {
	f := newFileServiceFixture(t)
	ctx := context.Background()

	file := f.upload(t, 1, "alice", "secret.txt", "classified")
	_, err := f.svc.UpdatePermission(ctx, UpdatePermissionInput{
		OwnerID: 1, FileID: file.ID, Permission: domain.PermissionProtected, Password: "filepass",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	t.Run("correct password", func(t *testing.T) {
		output, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID, Password: "filepass"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output.Body.Close()
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID, Password: "guess"})
		if !errors.Is(err, domain.ErrPasswordMismatch) {
			t.Fatalf("expected ErrPasswordMismatch, got %v", err)
		}
	})

	t.Run("owner without password denied", func(t *testing.T) {
		owner := &auth.Identity{UserID: 1, Username: "alice"}
		_, err := f.svc.Download(ctx, DownloadInput{LinkID: file.LinkID, Caller: owner})
		if !errors.Is(err, domain.ErrPasswordMismatch) {
			t.Fatalf("expected ErrPasswordMismatch, got %v", err)
		}
	})
}
