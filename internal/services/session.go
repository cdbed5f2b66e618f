package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/pagination"
	"saldo/internal/sheets"
	"saldo/internal/storage"
)

// Caches holds the process-wide collection and page caches, one store per
// record kind, shared by every session.
type Caches struct {
	Manager *cache.Manager

	Transactions *cache.Store[cache.Key, []core.Transaction]
	Budgets      *cache.Store[cache.Key, []core.Budget]
	Categories   *cache.Store[cache.Key, []core.Category]
	Goals        *cache.Store[cache.Key, []core.Goal]

	TransactionPages *pagination.Index[core.Transaction]
	BudgetPages      *pagination.Index[core.Budget]
	CategoryPages    *pagination.Index[core.Category]
	GoalPages        *pagination.Index[core.Goal]
}

func NewCaches(opts ...cache.Option) *Caches {
	c := &Caches{
		Manager:      cache.NewManager(),
		Transactions: cache.New[cache.Key, []core.Transaction](opts...),
		Budgets:      cache.New[cache.Key, []core.Budget](opts...),
		Categories:   cache.New[cache.Key, []core.Category](opts...),
		Goals:        cache.New[cache.Key, []core.Goal](opts...),

		TransactionPages: pagination.NewIndex(core.KindTransactions, cache.New[pagination.PageKey, pagination.Page[core.Transaction]](opts...)),
		BudgetPages:      pagination.NewIndex(core.KindBudgets, cache.New[pagination.PageKey, pagination.Page[core.Budget]](opts...)),
		CategoryPages:    pagination.NewIndex(core.KindCategories, cache.New[pagination.PageKey, pagination.Page[core.Category]](opts...)),
		GoalPages:        pagination.NewIndex(core.KindGoals, cache.New[pagination.PageKey, pagination.Page[core.Goal]](opts...)),
	}

	for _, s := range []cache.Sweeper{
		c.Transactions, c.Budgets, c.Categories, c.Goals,
		c.TransactionPages.Store(), c.BudgetPages.Store(), c.CategoryPages.Store(), c.GoalPages.Store(),
	} {
		c.Manager.Register(s)
	}
	return c
}

// Remotes are the authoritative stores, one per kind.
type Remotes struct {
	Transactions sheets.RecordStore[core.Transaction]
	Budgets      sheets.RecordStore[core.Budget]
	Categories   sheets.RecordStore[core.Category]
	Goals        sheets.RecordStore[core.Goal]
}

// Locals are the optional durable snapshots. Any field may be nil.
type Locals struct {
	Transactions storage.Snapshotter[core.Transaction]
	Budgets      storage.Snapshotter[core.Budget]
	Categories   storage.Snapshotter[core.Category]
	Goals        storage.Snapshotter[core.Goal]
}

// NewLocals builds SQLite-backed snapshots for every kind. A nil repo
// yields empty Locals.
func NewLocals(repo *storage.SQLiteRepository) Locals {
	if repo == nil {
		return Locals{}
	}
	return Locals{
		Transactions: storage.NewSnapshots[core.Transaction](repo, core.KindTransactions),
		Budgets:      storage.NewSnapshots[core.Budget](repo, core.KindBudgets),
		Categories:   storage.NewSnapshots[core.Category](repo, core.KindCategories),
		Goals:        storage.NewSnapshots[core.Goal](repo, core.KindGoals),
	}
}

// SnapshotPurger deletes every local snapshot of an owner.
type SnapshotPurger interface {
	DeleteOwner(ctx context.Context, ownerID string) (int64, error)
}

type SessionConfig struct {
	OwnerID   string
	Remotes   Remotes
	Locals    Locals
	Caches    *Caches
	Publisher ChangePublisher
	// Purger is optional; without it Forget only signs out.
	Purger SnapshotPurger
	Logger *log.Logger
}

// Session is the signed-in owner's view of all four collections.
type Session struct {
	ownerID string
	caches  *Caches
	purger  SnapshotPurger
	logger  *log.Logger

	Transactions *Coordinator[core.Transaction]
	Budgets      *Coordinator[core.Budget]
	Categories   *Coordinator[core.Category]
	Goals        *Coordinator[core.Goal]
}

func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Caches == nil {
		cfg.Caches = NewCaches()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}

	s := &Session{ownerID: cfg.OwnerID, caches: cfg.Caches, purger: cfg.Purger, logger: cfg.Logger}
	var err error

	if s.Transactions, err = NewCoordinator(CoordinatorConfig[core.Transaction]{
		Kind: core.KindTransactions, OwnerID: cfg.OwnerID,
		Remote: cfg.Remotes.Transactions, Local: cfg.Locals.Transactions,
		Cache: cfg.Caches.Transactions, Pages: cfg.Caches.TransactionPages,
		Publisher: cfg.Publisher, Logger: cfg.Logger,
	}); err != nil {
		return nil, err
	}
	if s.Budgets, err = NewCoordinator(CoordinatorConfig[core.Budget]{
		Kind: core.KindBudgets, OwnerID: cfg.OwnerID,
		Remote: cfg.Remotes.Budgets, Local: cfg.Locals.Budgets,
		Cache: cfg.Caches.Budgets, Pages: cfg.Caches.BudgetPages,
		Publisher: cfg.Publisher, Logger: cfg.Logger,
	}); err != nil {
		return nil, err
	}
	if s.Categories, err = NewCoordinator(CoordinatorConfig[core.Category]{
		Kind: core.KindCategories, OwnerID: cfg.OwnerID,
		Remote: cfg.Remotes.Categories, Local: cfg.Locals.Categories,
		Cache: cfg.Caches.Categories, Pages: cfg.Caches.CategoryPages,
		Publisher: cfg.Publisher, Logger: cfg.Logger,
	}); err != nil {
		return nil, err
	}
	if s.Goals, err = NewCoordinator(CoordinatorConfig[core.Goal]{
		Kind: core.KindGoals, OwnerID: cfg.OwnerID,
		Remote: cfg.Remotes.Goals, Local: cfg.Locals.Goals,
		Cache: cfg.Caches.Goals, Pages: cfg.Caches.GoalPages,
		Publisher: cfg.Publisher, Logger: cfg.Logger,
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) OwnerID() string { return s.ownerID }

// Start kicks off the initial load of every collection.
func (s *Session) Start(ctx context.Context) {
	s.Transactions.Start(ctx)
	s.Budgets.Start(ctx)
	s.Categories.Start(ctx)
	s.Goals.Start(ctx)
}

// RefreshAll reloads every collection concurrently. All four loads run to
// completion; the errors of the ones that had nothing to show are joined.
func (s *Session) RefreshAll(ctx context.Context) error {
	var g errgroup.Group
	errs := make([]error, 4)
	refreshers := []func(context.Context) error{
		s.Transactions.Refresh,
		s.Budgets.Refresh,
		s.Categories.Refresh,
		s.Goals.Refresh,
	}
	for i, refresh := range refreshers {
		g.Go(func() error {
			errs[i] = refresh(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("refresh all: %w", err)
	}
	return nil
}

// Sweep drops expired entries from every shared cache.
func (s *Session) Sweep() int {
	return s.caches.Manager.EvictExpired()
}

// SignOut empties every shared cache and resets the coordinators to an
// empty collection. Local snapshots are kept.
func (s *Session) SignOut(ctx context.Context) {
	s.caches.Manager.ClearAll()
	s.Transactions.Reset()
	s.Budgets.Reset()
	s.Categories.Reset()
	s.Goals.Reset()
	s.logger.InfoContext(ctx, "Signed out", log.FieldOperation, log.OpSignOut, log.FieldOwnerID, s.ownerID)
}

// Forget signs out and deletes the owner's local snapshots, returning how
// many were removed.
func (s *Session) Forget(ctx context.Context) (int64, error) {
	s.SignOut(ctx)
	if s.purger == nil || s.ownerID == "" {
		return 0, nil
	}
	n, err := s.purger.DeleteOwner(ctx, s.ownerID)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots of %s: %w", s.ownerID, err)
	}
	s.logger.InfoContext(ctx, "Local snapshots purged", log.FieldOwnerID, s.ownerID, log.FieldCount, n)
	return n, nil
}

// CacheStats reports the size of each collection cache.
func (s *Session) CacheStats() map[core.Kind]cache.Stats {
	return map[core.Kind]cache.Stats{
		core.KindTransactions: s.caches.Transactions.Stats(),
		core.KindBudgets:      s.caches.Budgets.Stats(),
		core.KindCategories:   s.caches.Categories.Stats(),
		core.KindGoals:        s.caches.Goals.Stats(),
	}
}
