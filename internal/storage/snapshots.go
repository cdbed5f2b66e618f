package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"saldo/internal/core"
)

// Snapshotter is the local durable copy of one record kind. Reads are best
// effort: a missing snapshot is an empty slice, not an error.
type Snapshotter[T any] interface {
	ReadSnapshot(ctx context.Context, ownerID string) ([]T, error)
	WriteSnapshot(ctx context.Context, ownerID string, records []T) error
}

// Snapshots is the typed view of one kind inside a SQLiteRepository.
type Snapshots[T any] struct {
	repo *SQLiteRepository
	kind core.Kind
}

var _ Snapshotter[core.Budget] = (*Snapshots[core.Budget])(nil)

func NewSnapshots[T any](repo *SQLiteRepository, kind core.Kind) *Snapshots[T] {
	return &Snapshots[T]{repo: repo, kind: kind}
}

func (s *Snapshots[T]) ReadSnapshot(ctx context.Context, ownerID string) ([]T, error) {
	payload, _, ok, err := s.repo.ReadRaw(ctx, s.kind, ownerID)
	if err != nil || !ok {
		return nil, err
	}
	var records []T
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode %s snapshot for %s: %w", s.kind, ownerID, err)
	}
	return records, nil
}

func (s *Snapshots[T]) WriteSnapshot(ctx context.Context, ownerID string, records []T) error {
	if records == nil {
		records = []T{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode %s snapshot for %s: %w", s.kind, ownerID, err)
	}
	return s.repo.WriteRaw(ctx, s.kind, ownerID, payload, len(records))
}

// Info returns metadata about the stored snapshot, if any.
func (s *Snapshots[T]) Info(ctx context.Context, ownerID string) (SnapshotInfo, bool, error) {
	_, info, ok, err := s.repo.ReadRaw(ctx, s.kind, ownerID)
	return info, ok, err
}
