// Package main is the entry point for the Barrett Share server.
// Barrett Share is a file-sharing service with link-based downloads and
// per-file access control.
package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/barrett-share/internal/auth"
	"github.com/prn-tf/barrett-share/internal/cache/memory"
	"github.com/prn-tf/barrett-share/internal/config"
	"github.com/prn-tf/barrett-share/internal/handler"
	"github.com/prn-tf/barrett-share/internal/lock"
	"github.com/prn-tf/barrett-share/internal/metrics"
	"github.com/prn-tf/barrett-share/internal/repository"
	"github.com/prn-tf/barrett-share/internal/repository/postgres"
	redisrepo "github.com/prn-tf/barrett-share/internal/repository/redis"
	"github.com/prn-tf/barrett-share/internal/repository/sqlite"
	"github.com/prn-tf/barrett-share/internal/service"
	"github.com/prn-tf/barrett-share/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Logging)
	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Msg("starting Barrett Share server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	// Database
	repos, dbHealth, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer dbHealth.Close()

	// Storage backend
	backend, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Cache and lock: Redis when configured, in-memory otherwise
	cache, locker, cleanup, err := openCacheAndLock(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Services
	hasher := auth.NewPasswordHasher()
	tokens := auth.NewTokenManager(cfg.Auth)
	userService := service.NewUserService(repos.User, hasher, tokens, logger)
	fileService := service.NewFileService(repos.File, backend, cache, locker, hasher, logger)

	// HTTP
	m := metrics.New()
	router := handler.NewRouter(handler.RouterConfig{
		AuthHandler:     handler.NewAuthHandler(userService, logger),
		FileHandler:     handler.NewFileHandler(fileService, m, cfg.Server.MaxUploadSize, logger),
		DownloadHandler: handler.NewDownloadHandler(fileService, m, logger),
		AuthMiddleware:  auth.NewMiddleware(tokens, logger),
		Metrics:         m,
		CORS:            cfg.CORS,
		RateLimit:       cfg.RateLimit,
		Health:          dbHealth,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv = metrics.NewServer(cfg.Metrics, m, logger)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown failed")
		}
	}
	return srv.Shutdown(shutdownCtx)
}

// openDatabase connects to the configured database, runs migrations, and
// builds the repository set.
func openDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repository.Repositories, repository.DatabaseHealth, error) {
	if cfg.Database.IsEmbedded() {
		sqliteCfg := sqlite.DefaultConfig(cfg.Database.Path)
		if cfg.Database.JournalMode != "" {
			sqliteCfg.JournalMode = cfg.Database.JournalMode
		}
		if cfg.Database.BusyTimeout > 0 {
			sqliteCfg.BusyTimeout = cfg.Database.BusyTimeout
		}

		db, err := sqlite.NewDB(ctx, sqliteCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}

		return &repository.Repositories{
			User: sqlite.NewUserRepository(db),
			File: sqlite.NewFileRepository(db),
		}, db, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	return &repository.Repositories{
		User: postgres.NewUserRepository(db),
		File: postgres.NewFileRepository(db),
	}, db, nil
}

// openStorage builds the configured blob storage backend.
func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Backend, error) {
	if cfg.Storage.Backend == "s3" {
		return storage.NewS3Backend(ctx, cfg.Storage.S3, logger)
	}
	return storage.NewFilesystemBackend(cfg.Storage.DataDir, cfg.Storage.TempDir, logger)
}

// openCacheAndLock builds the cache and locker, backed by Redis when
// enabled so multiple instances share state.
func openCacheAndLock(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (repository.Cache, lock.Locker, func(), error) {
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("failed to close redis client")
			}
		}
		return redisrepo.NewCache(client), lock.NewRedisLocker(redisrepo.NewDistributedLock(client)), cleanup, nil
	}

	cache := memory.NewCache()
	return cache, lock.NewMemoryLocker(), cache.Stop, nil
}

// logWriter maps the configured logging output to a stream.
// Unrecognized values fall back to the stdout default.
func logWriter(output string) io.Writer {
	if output == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// newLogger builds the process logger from configuration.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := logWriter(cfg.Output)
	logger := zerolog.New(out)
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}
