package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"saldo/internal/core"

	_ "modernc.org/sqlite"
)

const (
	upsertSnapshot = `
INSERT INTO snapshots (kind, owner_id, payload, record_count, written_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (kind, owner_id) DO UPDATE SET
    payload = excluded.payload,
    record_count = excluded.record_count,
    written_at = excluded.written_at`

	selectSnapshot = `
SELECT payload, record_count, written_at FROM snapshots
WHERE kind = ? AND owner_id = ?`

	selectOwners = `
SELECT owner_id FROM snapshots WHERE kind = ? ORDER BY owner_id`

	deleteOwner = `DELETE FROM snapshots WHERE owner_id = ?`
)

// SnapshotInfo describes a stored snapshot without decoding it.
type SnapshotInfo struct {
	Kind        core.Kind
	OwnerID     string
	RecordCount int
	WrittenAt   time.Time
}

// SQLiteRepository is the local durable store: one JSON snapshot per
// (kind, owner) pair.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite allows one writer; a single connection turns lock contention
	// into queueing instead of SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// WriteRaw stores payload as the snapshot for (kind, owner), replacing any previous one.
func (r *SQLiteRepository) WriteRaw(ctx context.Context, kind core.Kind, ownerID string, payload []byte, count int) error {
	_, err := r.db.ExecContext(ctx, upsertSnapshot, string(kind), ownerID, payload, count, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("write %s snapshot for %s: %w", kind, ownerID, err)
	}

	slog.DebugContext(ctx, "Snapshot saved to SQLite",
		"kind", kind,
		"owner_id", ownerID,
		"count", count)
	return nil
}

// ReadRaw returns the stored payload. ok is false when no snapshot exists.
func (r *SQLiteRepository) ReadRaw(ctx context.Context, kind core.Kind, ownerID string) (payload []byte, info SnapshotInfo, ok bool, err error) {
	var (
		count     int64
		writtenAt int64
	)
	err = r.db.QueryRowContext(ctx, selectSnapshot, string(kind), ownerID).Scan(&payload, &count, &writtenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, SnapshotInfo{}, false, nil
	}
	if err != nil {
		return nil, SnapshotInfo{}, false, fmt.Errorf("read %s snapshot for %s: %w", kind, ownerID, err)
	}
	info = SnapshotInfo{
		Kind:        kind,
		OwnerID:     ownerID,
		RecordCount: int(count),
		WrittenAt:   time.UnixMilli(writtenAt),
	}
	return payload, info, true, nil
}

// Owners lists every owner holding a snapshot of kind.
func (r *SQLiteRepository) Owners(ctx context.Context, kind core.Kind) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, selectOwners, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s owners: %w", kind, err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// DeleteOwner removes every snapshot of the owner, e.g. on sign-out.
func (r *SQLiteRepository) DeleteOwner(ctx context.Context, ownerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteOwner, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete snapshots for %s: %w", ownerID, err)
	}
	n, _ := res.RowsAffected()

	slog.InfoContext(ctx, "Snapshots deleted", "owner_id", ownerID, "count", n)
	return n, nil
}
