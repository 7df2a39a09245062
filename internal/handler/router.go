package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/config"
	"github.com/prn-tf/barrett-share/internal/metrics"
	"github.com/prn-tf/barrett-share/internal/repository"
)

// RouterConfig contains the dependencies for the HTTP router.
type RouterConfig struct {
	AuthHandler     *AuthHandler
	FileHandler     *FileHandler
	DownloadHandler *DownloadHandler
	AuthMiddleware  *auth.Middleware
	Metrics         *metrics.Metrics
	CORS            config.CORSConfig
	RateLimit       config.RateLimitConfig
	Health          repository.DatabaseHealth
	Logger          zerolog.Logger
}

// NewRouter assembles the API router.
//
// Route map:
//
//	POST /register               - create an account
//	POST /login                  - exchange credentials for a token
//	POST /upload                 - authenticated multipart upload
//	GET  /files                  - list the caller's files
//	GET  /files/{id}             - file detail (owner only)
//	PUT  /files/{id}/permission  - permission transition (owner only)
//	DELETE /files/{id}           - delete file and blob (owner only)
//	GET  /download/{linkId}      - resolve link and stream bytes
//	GET  /health                 - liveness and database reachability
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(cfg.Metrics))
	r.Use(CORS(cfg.CORS))
	if cfg.RateLimit.Enabled {
		limiter := NewRateLimiter(cfg.RateLimit, cfg.Logger)
		r.Use(limiter.Middleware)
	}
	r.Use(cfg.AuthMiddleware.Authenticate)

	r.Get("/health", healthHandler(cfg.Health))

	r.Post("/register", cfg.AuthHandler.Register)
	r.Post("/login", cfg.AuthHandler.Login)

	// Download resolves access itself: public links need no token,
	// private ones check the optional identity.
	r.Get("/download/{linkId}", cfg.DownloadHandler.Download)

	r.Group(func(r chi.Router) {
		r.Use(cfg.AuthMiddleware.RequireAuth)

		r.Post("/upload", cfg.FileHandler.Upload)
		r.Get("/files", cfg.FileHandler.List)
		r.Get("/files/{id}", cfg.FileHandler.Detail)
		r.Put("/files/{id}/permission", cfg.FileHandler.UpdatePermission)
		r.Delete("/files/{id}", cfg.FileHandler.Delete)
	})

	return r
}

// healthHandler reports liveness, including database reachability.
func healthHandler(db repository.DatabaseHealth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "degraded",
					"error":  "database unreachable",
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
