// Package domain contains the core business entities for Barrett Share.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same username exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ===========================================
	// File Record Errors
	// ===========================================

	// ErrFileNotFound indicates the requested file record does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrLinkNotFound indicates no record carries the requested link id.
	ErrLinkNotFound = errors.New("link not found")

	// ErrNotOwner indicates the caller does not own the file record.
	ErrNotOwner = errors.New("caller is not the file owner")

	// ErrInvalidPermission indicates the permission value is outside the
	// closed public/private/protected set.
	ErrInvalidPermission = errors.New("permission must be one of public, private, protected")

	// ErrPasswordRequired indicates a protected transition without a password.
	ErrPasswordRequired = errors.New("protected permission requires a password")

	// ErrLinkIDCollision indicates a freshly generated link id already exists.
	// Callers retry generation; repeated collisions indicate a broken RNG.
	ErrLinkIDCollision = errors.New("link id collision")

	// ===========================================
	// Access Errors
	// ===========================================

	// ErrAccessDenied indicates the download was denied by the permission check.
	ErrAccessDenied = errors.New("access denied")

	// ErrPasswordMismatch indicates a missing or incorrect file password.
	ErrPasswordMismatch = errors.New("password missing or incorrect")

	// ===========================================
	// Storage Errors
	// ===========================================

	// ErrBlobNotFound indicates the storage ref resolves to no stored bytes.
	ErrBlobNotFound = errors.New("blob not found")

	// ErrStorageFull indicates the storage backend has no space.
	ErrStorageFull = errors.New("storage is full")

	// ErrSizeMismatch indicates the stored byte count differs from the
	// declared size (a silently truncated or over-long write).
	ErrSizeMismatch = errors.New("stored size does not match declared size")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., link id, filename).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}

// WrapError wraps an error with domain context if it's not already a DomainError.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return err
	}

	return &DomainError{
		Err:     err,
		Message: message,
	}
}
