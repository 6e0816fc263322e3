// Bridgecall server — receives Telegram webhook updates, runs the matching
// engine, and pairs users holding opposing opinions for one-on-one calls.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bridgecall/bridgecall/pkg/api"
	"github.com/bridgecall/bridgecall/pkg/config"
	"github.com/bridgecall/bridgecall/pkg/database"
	"github.com/bridgecall/bridgecall/pkg/scheduler"
	"github.com/bridgecall/bridgecall/pkg/store"
	"github.com/bridgecall/bridgecall/pkg/telegram"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting bridgecall", "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Acquire the single-instance leader lock. The in-memory state map
	// is authoritative between flushes, so a second live instance is fatal.
	if err := dbClient.AcquireLeaderLock(ctx); err != nil {
		slog.Error("Failed to acquire leader lock", "error", err)
		os.Exit(1)
	}
	slog.Info("Leader lock acquired")

	// 4. Start the persistence writer and load the state map
	writer := database.NewWriter(dbClient.DB(), cfg.Engine.WriteQueueDepth)
	writer.Start()

	db := store.NewDB(writer)
	states, err := dbClient.LoadStates(ctx)
	if err != nil {
		slog.Error("Failed to load user states", "error", err)
		os.Exit(1)
	}
	db.Load(states)
	if err := db.CheckInvariants(); err != nil {
		slog.Error("Loaded state violates invariants", "error", err)
		os.Exit(1)
	}
	slog.Info("User states loaded", "count", len(states))

	// 5. Create the Telegram client and outbound dispatcher
	var clientOpts []telegram.ClientOption
	if cfg.Telegram.APIBase != "" {
		clientOpts = append(clientOpts, telegram.WithBaseURL(cfg.Telegram.APIBase))
	}
	botClient := telegram.NewClient(cfg.Telegram.Token(), clientOpts...)
	dispatcher := telegram.NewDispatcher(botClient, db)

	// 6. Start the scheduler driver (before the HTTP server)
	driver := scheduler.NewDriver(db, dispatcher,
		scheduler.WithQueueDepth(cfg.Engine.UpdateQueueDepth))
	driver.Start(ctx)

	// 7. Create HTTP server
	httpServer := api.NewServer(dbClient, driver, botClient, cfg.Telegram.WebhookSecret())

	// 8. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening",
			"host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.Start(cfg.Server.Host, cfg.Server.Port); err != nil {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Bridgecall started successfully")

	// 9. Wait for shutdown signal, server error, or driver death. The
	// driver closes Done on a fatal storage error; staying up past that
	// point would keep acking webhooks into a dead engine.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	case <-driver.Done():
		slog.Error("Scheduler driver died, shutting down", "error", driver.Err())
	}

	// 10. Graceful shutdown: HTTP first (no new updates), then the driver
	// (drain in-flight updates), then the writer (flush pending batches).
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	driver.Stop()
	if err := driver.Err(); err != nil {
		slog.Error("Scheduler driver terminated with error", "error", err)
	}

	if err := writer.Stop(); err != nil {
		slog.Error("Persistence writer terminated with error", "error", err)
	}

	slog.Info("Shutdown complete")
}
