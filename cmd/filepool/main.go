package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"filepool/internal/config"
	"filepool/internal/database"
	"filepool/internal/events"
	"filepool/internal/filepool"
	"filepool/internal/inflight"
	"filepool/internal/queue"
	"filepool/internal/transfer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup structured logging
	setupLogging(cfg.LogLevel)

	slog.Info("Starting filepool", "pool_path", cfg.PoolPath)

	if err := os.MkdirAll(cfg.PoolPath, 0o755); err != nil {
		return fmt.Errorf("failed to create pool directory: %w", err)
	}

	// Initialize the app-level database holding the download queue
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database", "error", err)
		}
	}()

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			slog.Error("Failed to close event bus", "error", err)
		}
	}()

	registry := inflight.NewRegistry()
	fs := transfer.NewOSFS(cfg.PoolPath)
	client := transfer.NewHTTPClient(cfg.DownloadTimeout)
	connectivity := filepool.AlwaysOnline{}

	pool := filepool.NewService(db, registry, bus, client, fs,
		filepool.PermissiveSites{}, connectivity, cfg.StreamingSupported)
	defer func() {
		if err := pool.Close(); err != nil {
			slog.Error("Failed to close site stores", "error", err)
		}
	}()

	processor := queue.NewProcessor(db, pool, connectivity, registry, bus)
	pool.SetQueueScheduler(processor)

	return runProcessor(processor)
}

func runProcessor(processor *queue.Processor) error {
	// Create main context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor.Start(ctx)

	// Pick up queue items left over from a previous session
	processor.CheckProcessing()

	// Periodically re-arm the queue in case a paused loop missed a wake
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				processor.CheckProcessing()
			}
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("Received shutdown signal", "signal", sig.String())

	cancel()

	slog.Info("Shutdown complete")
	return nil
}

// setupLogging configures structured logging based on the log level
func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	logger := slog.New(handler)
	slog.SetDefault(logger)
}
