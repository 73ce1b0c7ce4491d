// Package main is the entry point for the adpilot server. It loads
// configuration, connects the document store and Redis, builds the remote
// clients, wires together all plugins, and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keyxmakerx/adpilot/internal/app"
	"github.com/keyxmakerx/adpilot/internal/config"
	"github.com/keyxmakerx/adpilot/internal/database"
	"github.com/keyxmakerx/adpilot/internal/docstore"
	"github.com/keyxmakerx/adpilot/internal/events"
	"github.com/keyxmakerx/adpilot/internal/generator"
	"github.com/keyxmakerx/adpilot/internal/imagestore"
	"github.com/keyxmakerx/adpilot/internal/metaads"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting adpilot",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("docstore", cfg.Store.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Document Store ---
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open document store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	// --- Connect to Redis ---
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		slog.Info("connected to Redis")
	} else {
		slog.Warn("Redis disabled, running without locks or rate limiting")
	}

	// --- Remote Clients ---
	meta := metaads.NewClient(metaads.Config{
		GraphURL:   cfg.Meta.GraphURL,
		APIVersion: cfg.Meta.APIVersion,
		Retry: metaads.RetryPolicy{
			MaxAttempts: cfg.Meta.MaxAttempts,
			Initial:     cfg.Meta.RetryInitial,
			Max:         cfg.Meta.RetryMax,
		},
		CallsPerSecond: cfg.Meta.CallsPerSecond,
		HTTPTimeout:    cfg.Meta.HTTPTimeout,
	})

	provider, err := generator.New(ctx, cfg.AI)
	if err != nil {
		slog.Error("failed to create content provider", slog.Any("error", err))
		os.Exit(1)
	}
	defer provider.Close()

	images, err := imagestore.New(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to connect to object storage", slog.Any("error", err))
		os.Exit(1)
	}

	publisher := events.New(cfg.Kafka)
	defer publisher.Close()

	// --- Create Application ---
	application := app.New(cfg, app.Deps{
		Store:   store,
		Redis:   rdb,
		Meta:    meta,
		Content: provider,
		Images:  images,
		Events:  publisher,
	})

	// Register all routes (operational, plugin, API).
	if err := application.RegisterRoutes(); err != nil {
		slog.Error("failed to register routes", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Background Work ---
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		application.Sweeper.Run(ctx)
	}()

	// --- Graceful Shutdown ---
	// Drain connections cleanly on SIGINT/SIGTERM so container restarts are
	// seamless.
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", slog.Any("error", err))
	}

	stop()
	<-sweepDone
	slog.Info("server stopped")
}

// openStore connects the configured document store backend and returns it
// with its close function.
func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendFirestore:
		client, err := database.NewFirestore(ctx, cfg.Firestore)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("connected to Firestore", slog.String("project", cfg.Firestore.ProjectID))
		return docstore.NewFirestore(client), func() { client.Close() }, nil

	case config.BackendMemory:
		slog.Warn("using the in-memory document store, data is lost on restart")
		return docstore.NewMemory(), func() {}, nil

	default:
		db, err := database.NewMariaDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("connected to MariaDB")

		if err := database.RunMigrations(db, cfg.Store.MigrationsPath); err != nil {
			db.Close()
			return nil, nil, err
		}
		return docstore.NewMariaDB(db), func() { db.Close() }, nil
	}
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation at LOG_LEVEL.
func setupLogging(cfg *config.Config) {
	var handler slog.Handler

	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: parseLevel(cfg.LogLevel),
		})
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
