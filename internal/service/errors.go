// Package service provides business logic services for Barrett Share.
package service

import "errors"

// Common service errors.
var (
	// Validation errors
	ErrInvalidPassword = errors.New("invalid password: must be at least 8 characters")
	ErrInvalidUsername = errors.New("invalid username: must be 3-255 characters")
	ErrEmptyFile       = errors.New("uploaded file is empty")
	ErrEmptyFilename   = errors.New("filename must not be empty")
	ErrFileTooLarge    = errors.New("uploaded file exceeds the size limit")

	// Concurrency errors
	ErrConcurrentUpdate = errors.New("file is being modified by another request")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
