package backend

import (
	"context"

	"saldo/internal/amqp"
	"saldo/internal/services"
	"saldo/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds everything a session or worker needs from the backend.
// Repository and AMQP are nil when their configuration is empty.
type Result struct {
	Remotes    services.Remotes
	Locals     services.Locals
	Repository *storage.SQLiteRepository
	AMQP       *amqp.Client
	Cleanup    CleanupFunc
}

// Publisher returns the AMQP client as a change publisher, or nil when
// change events are disabled.
func (r *Result) Publisher() services.ChangePublisher {
	if r.AMQP == nil {
		return nil
	}
	return r.AMQP
}

// Factory creates backends based on configuration
type Factory interface {
	Create(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Owner the memory backend seeds categories for
	OwnerID string

	// Optional local snapshots
	SQLiteDBPath string

	// Optional change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Memory backend specific
	DataDirectory string
}

// BackendType represents the type of backend
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
