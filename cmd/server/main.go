package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iudanet/finkeeper/internal/consensus"
	"github.com/iudanet/finkeeper/internal/narrator"
	"github.com/iudanet/finkeeper/internal/replay"
	"github.com/iudanet/finkeeper/internal/server/handlers"
	"github.com/iudanet/finkeeper/internal/server/middleware"
	"github.com/iudanet/finkeeper/internal/server/storage/boltdb"
	"github.com/iudanet/finkeeper/internal/server/storage/sqlite"
	"github.com/iudanet/finkeeper/internal/snapshot"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	addr := flag.String("addr", envOr("FINKEEPER_ADDR", ":8080"), "Listen address")
	dbPath := flag.String("db", envOr("FINKEEPER_DB", "finkeeper.db"), "Path to SQLite database")
	snapshotsPath := flag.String("snapshots-db", envOr("FINKEEPER_SNAPSHOTS_DB", "finkeeper-snapshots.db"), "Path to snapshots database")
	jwtSecret := flag.String("jwt-secret", os.Getenv("FINKEEPER_JWT_SECRET"), "JWT signing secret")
	logLevel := flag.String("log-level", envOr("FINKEEPER_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	rateLimit := flag.Int("rate-limit", 100, "Max requests per client per minute")
	snapshotInterval := flag.Duration("snapshot-interval", time.Hour, "Snapshot scheduler interval")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))

	if *jwtSecret == "" {
		logger.Error("FINKEEPER_JWT_SECRET is required")
		os.Exit(1)
	}

	if err := run(logger, config{
		addr:             *addr,
		dbPath:           *dbPath,
		snapshotsPath:    *snapshotsPath,
		jwtSecret:        *jwtSecret,
		rateLimit:        *rateLimit,
		snapshotInterval: *snapshotInterval,
	}); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

type config struct {
	addr             string
	dbPath           string
	snapshotsPath    string
	jwtSecret        string
	rateLimit        int
	snapshotInterval time.Duration
}

func run(logger *slog.Logger, cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	snapStore, err := boltdb.New(ctx, cfg.snapshotsPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshots database: %w", err)
	}
	defer func() {
		if err := snapStore.Close(); err != nil {
			logger.Error("failed to close snapshots database", slog.Any("error", err))
		}
	}()

	jwtConfig := handlers.JWTConfig{
		Secret:          []byte(cfg.jwtSecret),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
	}

	consensusService := consensus.NewService(store, store, store, logger)
	engine := replay.NewEngine(store, snapStore, logger)
	narr := narrator.NewTemplateNarrator()

	// Планировщик снапшотов живет до отмены контекста, активных
	// пользователей он берет из журнала дельт.
	snapshotService := snapshot.NewService(engine, snapStore, store, cfg.snapshotInterval, logger)
	go snapshotService.Run(ctx)

	authHandler := handlers.NewAuthHandler(logger, store, store, jwtConfig)
	syncHandler := handlers.NewSyncHandler(logger, consensusService, store)
	recordsHandler := handlers.NewRecordsHandler(logger, store)
	conflictsHandler := handlers.NewConflictsHandler(logger, store, consensusService)
	historyHandler := handlers.NewHistoryHandler(logger, engine, store, narr)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	authn := middleware.Auth(logger, jwtConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", authHandler.Logout)
	mux.Handle("POST /api/v1/sync", authn(http.HandlerFunc(syncHandler.HandleSync)))
	mux.Handle("GET /api/v1/records", authn(http.HandlerFunc(recordsHandler.List)))
	mux.Handle("GET /api/v1/records/{id}", authn(http.HandlerFunc(recordsHandler.Get)))
	mux.Handle("GET /api/v1/conflicts", authn(http.HandlerFunc(conflictsHandler.List)))
	mux.Handle("POST /api/v1/conflicts/{id}/resolve", authn(http.HandlerFunc(conflictsHandler.Resolve)))
	mux.Handle("GET /api/v1/history/state", authn(http.HandlerFunc(historyHandler.State)))
	mux.Handle("GET /api/v1/history/diff", authn(http.HandlerFunc(historyHandler.Diff)))
	mux.Handle("GET /api/v1/history/evolution", authn(http.HandlerFunc(historyHandler.Evolution)))
	mux.Handle("GET /api/v1/history/timeline", authn(http.HandlerFunc(historyHandler.Timeline)))
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)

	limiter := middleware.NewRateLimiter(cfg.rateLimit, time.Minute)
	defer limiter.Stop()

	var handler http.Handler = mux
	handler = middleware.RateLimit(limiter, logger)(handler)
	handler = middleware.Logging(logger, "/api/v1/health")(handler)
	handler = middleware.Recovery(logger)(handler)

	server := &http.Server{
		Addr:              cfg.addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.addr),
			slog.String("version", Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printVersion() {
	fmt.Printf("FinKeeper Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
