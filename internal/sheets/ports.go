package sheets

import (
	"context"

	"saldo/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordStore is the authoritative remote copy of one record kind.
	// Implementations wrap core.ErrRemoteUnavailable, core.ErrRemoteRejected
	// or core.ErrNotFound so callers can classify failures.
	RecordStore[T core.Record] interface {
		// FetchAll returns every record the owner holds, in no particular order.
		FetchAll(ctx context.Context, ownerID string) ([]T, error)
		// Create persists a new record and returns it as stored, id included.
		Create(ctx context.Context, record T) (T, error)
		// Update replaces the record with the same id and returns the stored value.
		Update(ctx context.Context, record T) (T, error)
		Delete(ctx context.Context, id string) error
	}
)
