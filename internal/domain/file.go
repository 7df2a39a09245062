// Package domain contains the core business entities for Barrett Share.
package domain

import (
	"time"
)

// Permission represents the download-time access mode of a file.
// It is a closed set: exactly public, private, and protected are valid.
type Permission string

const (
	// PermissionPublic allows anyone holding the link id to download.
	PermissionPublic Permission = "public"

	// PermissionPrivate restricts downloads to the owner (authenticated).
	PermissionPrivate Permission = "private"

	// PermissionProtected requires the file password on download.
	PermissionProtected Permission = "protected"
)

// ParsePermission validates a raw permission string.
// Any value outside the closed set is rejected with ErrInvalidPermission.
func ParsePermission(s string) (Permission, error) {
	switch Permission(s) {
	case PermissionPublic, PermissionPrivate, PermissionProtected:
		return Permission(s), nil
	}
	return "", ErrInvalidPermission
}

// FileRecord represents an uploaded file and its sharing state.
// The record links the catalog entry to the stored bytes via StorageRef.
type FileRecord struct {
	// ID is the unique identifier for the record (auto-generated).
	ID int64 `json:"id"`

	// OwnerID is the ID of the user who uploaded the file.
	// Only the owner may list, inspect, re-permission, or delete the record.
	OwnerID int64 `json:"owner_id"`

	// OwnerUsername is the username of the owner, denormalized for responses.
	OwnerUsername string `json:"username"`

	// OriginalFilename is the caller-supplied display name, stored verbatim.
	// It is never used as a storage key.
	OriginalFilename string `json:"original_filename"`

	// ContentType is the MIME type captured at upload time.
	ContentType string `json:"content_type"`

	// Size is the byte length of the stored object.
	Size int64 `json:"size"`

	// UploadTime is the immutable creation timestamp.
	UploadTime time.Time `json:"upload_time"`

	// LinkID is the opaque public download handle. It is generated from a
	// cryptographically random source, globally unique for the lifetime of
	// the system, and never derivable from ID.
	LinkID string `json:"link_id"`

	// Permission is the current access mode. Defaults to private on creation.
	Permission Permission `json:"permission"`

	// PasswordHash is the bcrypt hash of the file password.
	// Set iff Permission is protected; cleared on any other transition.
	// This should never be exposed in API responses.
	PasswordHash *string `json:"-"`

	// StorageRef is the opaque locator into the object store.
	// Owned by the storage layer and never exposed to API callers.
	StorageRef string `json:"-"`
}

// NewFileRecord creates a FileRecord with the private default permission.
func NewFileRecord(ownerID int64, ownerUsername, filename, contentType, linkID, storageRef string, size int64) *FileRecord {
	return &FileRecord{
		OwnerID:          ownerID,
		OwnerUsername:    ownerUsername,
		OriginalFilename: filename,
		ContentType:      contentType,
		Size:             size,
		UploadTime:       time.Now().UTC(),
		LinkID:           linkID,
		Permission:       PermissionPrivate,
		PasswordHash:     nil,
		StorageRef:       storageRef,
	}
}

// IsProtected returns true if downloads require the file password.
func (f *FileRecord) IsProtected() bool {
	return f.Permission == PermissionProtected
}

// SetPermission applies a permission transition, maintaining the invariant
// that a password hash is present iff the permission is protected.
func (f *FileRecord) SetPermission(p Permission, passwordHash *string) {
	f.Permission = p
	if p == PermissionProtected {
		f.PasswordHash = passwordHash
	} else {
		f.PasswordHash = nil
	}
}

// FileListItem is the public-safe projection returned by list operations.
// Internal fields (storage ref, password hash) never leave this boundary.
type FileListItem struct {
	ID               int64      `json:"id"`
	OriginalFilename string     `json:"originalFilename"`
	LinkID           string     `json:"linkId"`
	Permission       Permission `json:"permission"`
}

// ListItem projects the record to its public-safe subset.
func (f *FileRecord) ListItem() FileListItem {
	return FileListItem{
		ID:               f.ID,
		OriginalFilename: f.OriginalFilename,
		LinkID:           f.LinkID,
		Permission:       f.Permission,
	}
}
