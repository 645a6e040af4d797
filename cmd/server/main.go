package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"infopos/backend/internal/cache"
	"infopos/backend/internal/config"
	"infopos/backend/internal/httpapi"
	"infopos/backend/internal/logging"
	"infopos/backend/internal/observability"
	"infopos/backend/internal/service"
	"infopos/backend/internal/store"
	"infopos/backend/internal/store/memory"
	pgstore "infopos/backend/internal/store/postgres"
	"infopos/backend/internal/store/sqlite"
	"infopos/backend/internal/timestamp"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	logger, logCloser := logging.New(logging.Options{Format: cfg.LogFormat, File: cfg.LogFile})
	slog.SetDefault(logger)

	loc, err := timestamp.LoadLocation(cfg.StoreTimezone)
	if err != nil {
		log.Fatalf("invalid STORE_TIMEZONE: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Error("repository unavailable", "backend", cfg.StoreBackend(), "error", err)
		os.Exit(1)
	}

	manifests := cache.ManifestCache(cache.NoopManifestCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisManifestCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop manifest cache", "error", err)
		} else {
			manifests = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("manifest cache: redis", "addr", cfg.RedisAddr)
		}
	} else {
		logger.Info("manifest cache: noop")
	}

	metrics := observability.NewMetrics()
	svc := service.New(repo, service.Options{
		Location: loc,
		Version:  cfg.AppVersion,
		Cache:    manifests,
		CacheTTL: cfg.ManifestCacheTTL,
		Observer: metrics,
		Logger:   logger,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		RequestTimeout: cfg.RequestTimeout,
		PushRateLimit:  cfg.PushRateLimit,
		Metrics:        metrics,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("sync server listening", "addr", cfg.Address(), "timezone", loc.String(), "version", cfg.AppVersion)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("server stopped")
	_ = logCloser.Close()
}

// openRepository picks postgres, then sqlite, then the seeded in-memory store. A
// configured database that cannot be opened is fatal; there is no silent fallback.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, []func() error, error) {
	switch cfg.StoreBackend() {
	case "postgres":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("repository: postgres")
		return pg, []func() error{pg.Close}, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("repository: sqlite", "path", cfg.SQLitePath)
		return db, []func() error{db.Close}, nil
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if _, err := timestamp.LoadLocation(cfg.StoreTimezone); err != nil {
		return fmt.Errorf("STORE_TIMEZONE %q is not a known zone", cfg.StoreTimezone)
	}
	if cfg.AllowedOrigin == "*" && cfg.StoreBackend() != "memory" {
		return fmt.Errorf("ALLOWED_ORIGIN must name the POS client origin when a database is configured")
	}
	return nil
}
