// Package handler provides HTTP handlers for the Barrett Share API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/service"
)

// statusFor maps service and domain errors onto HTTP status codes.
// Every sentinel maps to exactly one status so clients can rely on codes
// rather than parsing messages.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidUsername),
		errors.Is(err, service.ErrInvalidPassword),
		errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrEmptyFilename),
		errors.Is(err, domain.ErrInvalidPermission),
		errors.Is(err, domain.ErrPasswordRequired),
		errors.Is(err, domain.ErrSizeMismatch):
		return http.StatusBadRequest

	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized

	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrAccessDenied),
		errors.Is(err, domain.ErrPasswordMismatch):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrFileNotFound),
		errors.Is(err, domain.ErrLinkNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrUserAlreadyExists):
		return http.StatusConflict

	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, service.ErrConcurrentUpdate):
		return http.StatusConflict

	case errors.Is(err, domain.ErrStorageFull):
		return http.StatusInsufficientStorage
	}

	return http.StatusInternalServerError
}

// writeError writes the error as a plain text response.
// Internal errors get a generic body so infrastructure details never leak.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	http.Error(w, message, status)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeText writes a plain text confirmation.
func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
