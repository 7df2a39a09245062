package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/metrics"
	"github.com/prn-tf/barrett-share/internal/service"
)

// multipartMemoryLimit caps the in-memory portion of multipart parsing;
// larger files spill to disk.
const multipartMemoryLimit = 32 << 20

// FileHandler handles the owner-scoped file catalog operations.
type FileHandler struct {
	fileService   *service.FileService
	metrics       *metrics.Metrics
	maxUploadSize int64
	logger        zerolog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(fileService *service.FileService, m *metrics.Metrics, maxUploadSize int64, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		fileService:   fileService,
		metrics:       m,
		maxUploadSize: maxUploadSize,
		logger:        logger.With().Str("handler", "file").Logger(),
	}
}

// detailResponse is the JSON shape of GET /files/{id}.
type detailResponse struct {
	ID               int64             `json:"id"`
	Size             int64             `json:"size"`
	Username         string            `json:"username"`
	OriginalFilename string            `json:"originalFilename"`
	UploadTime       time.Time         `json:"uploadTime"`
	LinkID           string            `json:"linkId"`
	Permission       domain.Permission `json:"permission"`
	ContentType      string            `json:"contentType"`
}

// permissionRequest is the body of PUT /files/{id}/permission.
type permissionRequest struct {
	Permission string `json:"permission"`
	Password   string `json:"password"`
}

// Upload handles POST /upload. The file rides in the multipart field "file".
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, service.ErrFileTooLarge)
			return
		}
		http.Error(w, "invalid multipart request", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn().Err(err).Msg("failed to clean up multipart temp files")
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	output, err := h.fileService.Upload(r.Context(), service.UploadInput{
		OwnerID:       identity.UserID,
		OwnerUsername: identity.Username,
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		Body:          file,
		Size:          header.Size,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.UploadsTotal.Inc()
	h.metrics.UploadBytes.Add(float64(output.File.Size))

	// The confirmation carries the link id so clients can share immediately.
	writeText(w, http.StatusOK, "upload complete: "+output.File.LinkID)
}

// List handles GET /files. Only the caller's own files are returned.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	items, err := h.fileService.List(r.Context(), identity.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// Detail handles GET /files/{id}.
func (h *FileHandler) Detail(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	fileID, err := parseFileID(r)
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	file, err := h.fileService.GetDetail(r.Context(), identity.UserID, fileID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, detailResponse{
		ID:               file.ID,
		Size:             file.Size,
		Username:         file.OwnerUsername,
		OriginalFilename: file.OriginalFilename,
		UploadTime:       file.UploadTime,
		LinkID:           file.LinkID,
		Permission:       file.Permission,
		ContentType:      file.ContentType,
	})
}

// UpdatePermission handles PUT /files/{id}/permission.
func (h *FileHandler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	fileID, err := parseFileID(r)
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	var req permissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	permission, err := domain.ParsePermission(req.Permission)
	if err != nil {
		writeError(w, err)
		return
	}

	_, err = h.fileService.UpdatePermission(r.Context(), service.UpdatePermissionInput{
		OwnerID:    identity.UserID,
		FileID:     fileID,
		Permission: permission,
		Password:   req.Password,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeText(w, http.StatusOK, "permission updated")
}

// Delete handles DELETE /files/{id}.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	fileID, err := parseFileID(r)
	if err != nil {
		http.Error(w, "invalid file id", http.StatusBadRequest)
		return
	}

	if err := h.fileService.Delete(r.Context(), identity.UserID, fileID); err != nil {
		writeError(w, err)
		return
	}

	h.metrics.FilesDeleted.Inc()
	writeText(w, http.StatusOK, "file deleted")
}

// parseFileID extracts the {id} route parameter.
func parseFileID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
