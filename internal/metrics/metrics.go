// Package metrics exposes Prometheus instrumentation for the HTTP API
// and the storage layer. Metrics are served on a separate listener so
// the scrape endpoint is never exposed on the public API port.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/config"
)

// Metrics holds all collectors for the server.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	UploadsTotal   prometheus.Counter
	UploadBytes    prometheus.Counter
	DownloadsTotal *prometheus.CounterVec
	DownloadBytes  prometheus.Counter
	FilesDeleted   prometheus.Counter
}

// New creates a Metrics instance with its own registry.
// A private registry keeps tests isolated from the default global one.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barrett",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "status"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "barrett",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		UploadsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barrett",
			Subsystem: "files",
			Name:      "uploads_total",
			Help:      "Total successful file uploads.",
		}),

		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barrett",
			Subsystem: "files",
			Name:      "upload_bytes_total",
			Help:      "Total bytes accepted by uploads.",
		}),

		DownloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "barrett",
			Subsystem: "files",
			Name:      "downloads_total",
			Help:      "Total download attempts by outcome.",
		}, []string{"outcome"}),

		DownloadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barrett",
			Subsystem: "files",
			Name:      "download_bytes_total",
			Help:      "Total bytes streamed to download clients.",
		}),

		FilesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "barrett",
			Subsystem: "files",
			Name:      "deleted_total",
			Help:      "Total file deletions.",
		}),
	}
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server wraps the standalone metrics HTTP server.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates the metrics server from configuration.
func NewServer(cfg config.MetricsConfig, m *Metrics, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, m.Handler())

	return &Server{
		srv: &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start runs the metrics listener until it fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.srv.Addr).Msg("metrics server starting")
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
