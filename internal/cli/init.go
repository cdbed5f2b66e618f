// Package cli holds the initialization shared by cmd/saldo and
// cmd/saldo-worker, plus the saldo subcommands.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"saldo/internal/backend"
	"saldo/internal/cache"
	"saldo/internal/config"
	"saldo/internal/log"
	"saldo/internal/services"
)

// SetupLogger builds the process logger at level and installs it as the
// slog default.
func SetupLogger(level, component string) *log.Logger {
	lvl := log.ParseLevel(level)
	logger := log.New(log.Config{
		Level:     lvl,
		Component: component,
		Handler:   slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}),
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// InitBackend builds the configured backend.
func InitBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	result, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	return result, nil
}

// OpenSession builds the backend and a session for the configured owner.
// The returned cleanup releases the backend.
func OpenSession(ctx context.Context, cfg *config.Config, logger *log.Logger) (*services.Session, func() error, error) {
	result, err := InitBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	var purger services.SnapshotPurger
	if result.Repository != nil {
		purger = result.Repository
	}

	session, err := services.NewSession(services.SessionConfig{
		OwnerID: cfg.OwnerID,
		Remotes: result.Remotes,
		Locals:  result.Locals,
		Caches: services.NewCaches(
			cache.WithTTL(cfg.CacheTTL),
			cache.WithCapacity(cfg.CacheCapacity),
		),
		Publisher: result.Publisher(),
		Purger:    purger,
		Logger:    logger,
	})
	if err != nil {
		_ = result.Cleanup()
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	return session, result.Cleanup, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. Once
// the signal arrives, cleanup runs and done closes after it returns or
// timeout elapses, whichever comes first.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
