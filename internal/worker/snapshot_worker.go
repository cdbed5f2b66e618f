package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/query"
	"saldo/internal/services"
	"saldo/internal/sheets"
	"saldo/internal/storage"
)

// OwnerLister reports which owners already have a snapshot of a kind.
type OwnerLister interface {
	Owners(ctx context.Context, kind core.Kind) ([]string, error)
}

// syncer rebuilds one kind's snapshot for an owner from the remote.
type syncer interface {
	sync(ctx context.Context, ownerID string) (int, error)
}

type kindSyncer[T core.Record] struct {
	kind      core.Kind
	remote    sheets.RecordStore[T]
	snapshots storage.Snapshotter[T]
}

func (s *kindSyncer[T]) sync(ctx context.Context, ownerID string) (int, error) {
	records, err := s.remote.FetchAll(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("fetch %s for %s: %w", s.kind, ownerID, err)
	}
	records = query.DedupeAndSort(records)
	if err := s.snapshots.WriteSnapshot(ctx, ownerID, records); err != nil {
		return 0, fmt.Errorf("write %s snapshot for %s: %w", s.kind, ownerID, err)
	}
	return len(records), nil
}

// SnapshotWorker keeps the local snapshots in step with the remote. It
// reacts to change events and periodically resyncs every known owner in
// case events were lost.
type SnapshotWorker struct {
	owners  OwnerLister
	syncers map[core.Kind]syncer
	logger  *log.Logger
}

func NewSnapshotWorker(owners OwnerLister, remotes services.Remotes, locals services.Locals, logger *log.Logger) *SnapshotWorker {
	if logger == nil {
		logger = log.Discard()
	}
	syncers := make(map[core.Kind]syncer)
	if remotes.Transactions != nil && locals.Transactions != nil {
		syncers[core.KindTransactions] = &kindSyncer[core.Transaction]{core.KindTransactions, remotes.Transactions, locals.Transactions}
	}
	if remotes.Budgets != nil && locals.Budgets != nil {
		syncers[core.KindBudgets] = &kindSyncer[core.Budget]{core.KindBudgets, remotes.Budgets, locals.Budgets}
	}
	if remotes.Categories != nil && locals.Categories != nil {
		syncers[core.KindCategories] = &kindSyncer[core.Category]{core.KindCategories, remotes.Categories, locals.Categories}
	}
	if remotes.Goals != nil && locals.Goals != nil {
		syncers[core.KindGoals] = &kindSyncer[core.Goal]{core.KindGoals, remotes.Goals, locals.Goals}
	}
	return &SnapshotWorker{
		owners:  owners,
		syncers: syncers,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleChange rebuilds the snapshot named by a change event. Errors are
// returned so the message is redelivered.
func (w *SnapshotWorker) HandleChange(ctx context.Context, change core.Change) error {
	s, ok := w.syncers[change.Kind]
	if !ok {
		w.logger.WarnContext(ctx, "No syncer for kind, dropping change", log.FieldKind, change.Kind)
		return nil
	}

	start := time.Now()
	n, err := s.sync(ctx, change.OwnerID)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Snapshot rebuilt",
		log.FieldKind, change.Kind,
		log.FieldOwnerID, change.OwnerID,
		log.FieldRecordID, change.RecordID,
		log.FieldOperation, string(change.Op),
		log.FieldCount, n,
		log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// ResyncStats summarizes a full resync.
type ResyncStats struct {
	Total  int
	Synced int
	Errors int
}

// ResyncAll rebuilds every existing snapshot, one goroutine per kind. A
// failing owner is logged and counted; only failing to list owners aborts.
func (w *SnapshotWorker) ResyncAll(ctx context.Context) (ResyncStats, error) {
	var total, synced, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)

	for kind, s := range w.syncers {
		g.Go(func() error {
			owners, err := w.owners.Owners(ctx, kind)
			if err != nil {
				return fmt.Errorf("list %s owners: %w", kind, err)
			}
			for _, owner := range owners {
				total.Add(1)
				if _, err := s.sync(ctx, owner); err != nil {
					failed.Add(1)
					w.logger.ErrorContext(ctx, "Resync failed",
						log.FieldKind, kind, log.FieldOwnerID, owner, log.FieldError, err)
					continue
				}
				synced.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	return ResyncStats{Total: int(total.Load()), Synced: int(synced.Load()), Errors: int(failed.Load())}, err
}

// StartupResync recovers from events missed while the worker was down.
func (w *SnapshotWorker) StartupResync(ctx context.Context) error {
	stats, err := w.ResyncAll(ctx)
	if err != nil {
		return fmt.Errorf("startup resync: %w", err)
	}
	if stats.Total == 0 {
		w.logger.InfoContext(ctx, "No snapshots found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		"total", stats.Total,
		"synced", stats.Synced,
		"errors", stats.Errors)
	return nil
}

// ChangeSource delivers change events, e.g. an AMQP consumer.
type ChangeSource interface {
	ConsumeChanges(ctx context.Context, handler func(context.Context, core.Change) error) error
}

// Run consumes changes from source and resyncs every interval until ctx is
// done. A zero interval disables the periodic resync.
func (w *SnapshotWorker) Run(ctx context.Context, source ChangeSource, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error {
			return source.ConsumeChanges(ctx, w.HandleChange)
		})
	}

	if interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					stats, err := w.ResyncAll(ctx)
					if err != nil {
						w.logger.ErrorContext(ctx, "Periodic resync failed", log.FieldError, err)
						continue
					}
					w.logger.DebugContext(ctx, "Periodic resync done",
						"total", stats.Total, "synced", stats.Synced, "errors", stats.Errors)
				}
			}
		})
	}

	return g.Wait()
}
