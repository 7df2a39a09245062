package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/metrics"
	"github.com/prn-tf/barrett-share/internal/service"
)

// DownloadHandler handles link-id downloads.
type DownloadHandler struct {
	fileService *service.FileService
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(fileService *service.FileService, m *metrics.Metrics, logger zerolog.Logger) *DownloadHandler {
	return &DownloadHandler{
		fileService: fileService,
		metrics:     m,
		logger:      logger.With().Str("handler", "download").Logger(),
	}
}

// Download handles GET /download/{linkId}.
// The file password for protected files rides in the password query
// parameter. Authentication is optional; private files require it.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	linkID := chi.URLParam(r, "linkId")
	identity, _ := auth.IdentityFromContext(r.Context())

	output, err := h.fileService.Download(r.Context(), service.DownloadInput{
		LinkID:   linkID,
		Caller:   identity,
		Password: r.URL.Query().Get("password"),
	})
	if err != nil {
		h.metrics.DownloadsTotal.WithLabelValues(downloadOutcome(err)).Inc()
		writeError(w, err)
		return
	}
	defer output.Body.Close()

	file := output.File

	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	// inline lets browsers render viewable types; the filename parameter
	// is escaped by mime.FormatMediaType so a crafted name can't inject
	// headers.
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{
		"filename": file.OriginalFilename,
	}))

	written, err := io.Copy(w, output.Body)
	if err != nil {
		// Headers are already sent; all that's left is logging.
		h.logger.Warn().
			Err(err).
			Str("link_id", linkID).
			Int64("written", written).
			Msg("download interrupted")
		h.metrics.DownloadsTotal.WithLabelValues("interrupted").Inc()
		h.metrics.DownloadBytes.Add(float64(written))
		return
	}

	h.metrics.DownloadsTotal.WithLabelValues("success").Inc()
	h.metrics.DownloadBytes.Add(float64(written))
}

// downloadOutcome labels a failed download for metrics.
func downloadOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrLinkNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAccessDenied), errors.Is(err, domain.ErrPasswordMismatch):
		return "denied"
	}
	return "error"
}
