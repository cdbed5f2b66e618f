package backend

import (
	"context"
	"errors"
	"fmt"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/services"
	gsheet "saldo/internal/sheets/google"
	"saldo/internal/sheets/memory"
	"saldo/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// Create implements Factory.Create. The remote stores are mandatory; the
// snapshot repository and AMQP client are built only when configured. A
// failure to reach AMQP is logged and the result carries no publisher.
func (f *DefaultFactory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}

	switch config.Type {
	case SheetsBackend:
		remotes, err := f.createSheetsRemotes(ctx, config)
		if err != nil {
			return nil, err
		}
		result.Remotes = remotes
	case MemoryBackend:
		result.Remotes = f.createMemoryRemotes(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.SQLiteDBPath != "" {
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		result.Repository = repo
		result.Locals = services.NewLocals(repo)
		f.logger.Info("Initialized local snapshots", "db_path", config.SQLiteDBPath)
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		} else {
			result.AMQP = client
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if result.AMQP != nil {
			errs = append(errs, result.AMQP.Close())
		}
		if result.Repository != nil {
			errs = append(errs, result.Repository.Close())
		}
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized backend",
		"type", config.Type,
		"local_snapshots", result.Repository != nil,
		"amqp_enabled", result.AMQP != nil)

	return result, nil
}

func (f *DefaultFactory) createSheetsRemotes(ctx context.Context, config Config) (services.Remotes, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return services.Remotes{}, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return services.Remotes{
		Transactions: gsheet.Transactions(cli),
		Budgets:      gsheet.Budgets(cli),
		Categories:   gsheet.Categories(cli),
		Goals:        gsheet.Goals(cli),
	}, nil
}

func (f *DefaultFactory) createMemoryRemotes(config Config) services.Remotes {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	categories := memory.NewCategoriesFromFiles(dataDir, config.OwnerID)

	f.logger.Info("Initialized memory backend",
		"data_directory", dataDir,
		log.FieldCount, categories.Len())

	return services.Remotes{
		Transactions: memory.New[core.Transaction](),
		Budgets:      memory.New[core.Budget](),
		Categories:   categories,
		Goals:        memory.New[core.Goal](),
	}
}
