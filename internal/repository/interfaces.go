// Package repository defines data access interfaces for Barrett Share.
// These interfaces abstract database operations, allowing for different implementations
// (PostgreSQL, SQLite) while keeping the service layer clean.
package repository

import (
	"context"

	"github.com/prn-tf/barrett-share/internal/domain"
)

// ListOptions contains pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// ListResult contains a page of items and the total count.
type ListResult[T any] struct {
	Items  []*T
	Total  int64
	Offset int
	Limit  int
}

// =============================================================================
// User Repository
// =============================================================================

// UserRepository defines the interface for user data access.
type UserRepository interface {
	// Create creates a new user.
	// Returns domain.ErrUserAlreadyExists on a duplicate username.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*domain.User, error)

	// Update updates an existing user.
	Update(ctx context.Context, user *domain.User) error

	// Delete deletes a user by ID.
	Delete(ctx context.Context, id int64) error

	// List returns all users with pagination.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.User], error)

	// ExistsByUsername checks if a user with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// =============================================================================
// File Repository (Metadata Catalog)
// =============================================================================

// FileRepository defines the interface for file record data access.
// Link id uniqueness is enforced by the persistence layer; Create surfaces
// a collision as domain.ErrLinkIDCollision so callers can regenerate.
type FileRepository interface {
	// Create creates a new file record and fills in the generated ID.
	Create(ctx context.Context, file *domain.FileRecord) error

	// GetByID retrieves a file record by internal ID.
	GetByID(ctx context.Context, id int64) (*domain.FileRecord, error)

	// GetByLinkID retrieves a file record by its public link id.
	// Returns domain.ErrLinkNotFound if no record carries the link id.
	GetByLinkID(ctx context.Context, linkID string) (*domain.FileRecord, error)

	// ListByOwner returns all file records owned by the given user,
	// newest first.
	ListByOwner(ctx context.Context, ownerID int64) ([]*domain.FileRecord, error)

	// UpdatePermission atomically sets the permission state and password
	// hash of a record. The two columns always change together so a
	// protected record can never be observed without its hash.
	UpdatePermission(ctx context.Context, id int64, permission domain.Permission, passwordHash *string) error

	// Delete deletes a file record by ID.
	Delete(ctx context.Context, id int64) error

	// CountByOwner returns the number of records owned by the given user.
	CountByOwner(ctx context.Context, ownerID int64) (int64, error)

	// List returns all file records with pagination (admin use).
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.FileRecord], error)
}
