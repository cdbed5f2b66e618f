package main

import (
	"context"
	"errors"
	"os"
	"time"

	"saldo/internal/cli"
	"saldo/internal/log"
	"saldo/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.SetupLogger("info", log.ComponentWorker).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.Info("Starting saldo-worker")

	if cfg.SQLiteDBPath == "" {
		logger.Error("SQLITE_DB_PATH is required: the worker maintains local snapshots")
		os.Exit(1)
	}

	result, err := cli.InitBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err)
		os.Exit(1)
	}

	w := worker.NewSnapshotWorker(result.Repository, result.Remotes, result.Locals, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err)
		}
	})

	// Rebuild snapshots that may have missed changes while we were down
	logger.Info("Performing startup sync check...")
	if err := w.StartupResync(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	var source worker.ChangeSource
	if result.AMQP != nil {
		source = result.AMQP
	} else {
		logger.Info("AMQP disabled, running periodic resync only")
	}

	if err := w.Run(ctx, source, cfg.ResyncInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
		if err := result.Cleanup(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err)
		}
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
