package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/pagination"
	"saldo/internal/query"
	"saldo/internal/sheets"
	"saldo/internal/state"
	"saldo/internal/storage"
)

// ChangePublisher announces mutations the remote has committed.
type ChangePublisher interface {
	PublishChange(ctx context.Context, change core.Change) error
}

// CoordinatorConfig wires one coordinator. Remote is required; Local,
// Pages and Publisher are optional.
type CoordinatorConfig[T core.Record] struct {
	Kind      core.Kind
	OwnerID   string
	Remote    sheets.RecordStore[T]
	Local     storage.Snapshotter[T]
	Cache     *cache.Store[cache.Key, []T]
	Pages     *pagination.Index[T]
	Publisher ChangePublisher
	Logger    *log.Logger
	Now       func() time.Time
}

// Coordinator keeps one owner's collection of one record kind in sync
// across the remote store, the shared cache, the local snapshot and its
// observers.
//
// Loads try the cache, then the remote, then fall back to whatever
// snapshot exists. Mutations are write-through: the published state only
// changes after the remote confirms. Loads and mutations on the same
// coordinator run one at a time; transitions are published in completion
// order.
type Coordinator[T core.Record] struct {
	kind      core.Kind
	ownerID   string
	remote    sheets.RecordStore[T]
	local     storage.Snapshotter[T]
	cache     *cache.Store[cache.Key, []T]
	pages     *pagination.Index[T]
	publisher ChangePublisher
	logger    *log.Logger
	now       func() time.Time

	holder *state.Holder[T]
	loads  singleflight.Group
	opMu   sync.Mutex

	mu      sync.RWMutex
	records []T
	hasData bool
}

func NewCoordinator[T core.Record](cfg CoordinatorConfig[T]) (*Coordinator[T], error) {
	if !cfg.Kind.IsValid() {
		return nil, fmt.Errorf("invalid record kind %q", cfg.Kind)
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("%s coordinator: remote store is required", cfg.Kind)
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New[cache.Key, []T]()
	}
	if cfg.Pages == nil {
		cfg.Pages = pagination.NewIndex[T](cfg.Kind, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Coordinator[T]{
		kind:      cfg.Kind,
		ownerID:   cfg.OwnerID,
		remote:    cfg.Remote,
		local:     cfg.Local,
		cache:     cfg.Cache,
		pages:     cfg.Pages,
		publisher: cfg.Publisher,
		logger:    cfg.Logger.WithComponent(log.ComponentSync).With(log.FieldKind, cfg.Kind, log.FieldOwnerID, cfg.OwnerID),
		now:       cfg.Now,
		holder:    state.NewHolder[T](),
	}, nil
}

func (c *Coordinator[T]) Kind() core.Kind { return c.kind }

func (c *Coordinator[T]) OwnerID() string { return c.ownerID }

func (c *Coordinator[T]) State() state.State[T] { return c.holder.Current() }

// Holder exposes the observable state for derived views.
func (c *Coordinator[T]) Holder() *state.Holder[T] { return c.holder }

// Subscribe streams state transitions; see state.Holder.Subscribe.
func (c *Coordinator[T]) Subscribe() (<-chan state.State[T], func()) {
	return c.holder.Subscribe()
}

// Records returns a copy of the last published collection.
func (c *Coordinator[T]) Records() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.records...)
}

// lastGood is the published collection, or nil when nothing was ever
// published.
func (c *Coordinator[T]) lastGood() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasData {
		return nil
	}
	return append(make([]T, 0, len(c.records)), c.records...)
}

// Page returns one page of the current collection.
func (c *Coordinator[T]) Page(pageNumber, pageSize int) pagination.Page[T] {
	return c.pages.Page(c.ownerID, pageNumber, pageSize, c.Records)
}

// Start runs the initial load in the background. Failures end up in the
// published state; they are also logged.
func (c *Coordinator[T]) Start(ctx context.Context) {
	go func() {
		if err := c.Refresh(ctx); err != nil {
			c.logger.WarnContext(ctx, "Initial load failed", log.FieldError, err)
		}
	}()
}

// Refresh runs the load protocol and returns once the remote has answered.
// Concurrent calls share a single in-flight load. The returned error is
// non-nil only when no data at all could be published.
//
// The shared load ignores the cancellation of whichever caller started it;
// each caller stops waiting when its own ctx is done.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)
	ch := c.loads.DoChan(c.key().String(), func() (any, error) {
		return nil, c.load(shared)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator[T]) load(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.loadLocked(ctx)
}

// loadLocked runs the load protocol. The caller holds opMu.
func (c *Coordinator[T]) loadLocked(ctx context.Context) error {
	if c.ownerID == "" {
		c.publishData(nil)
		return nil
	}

	c.holder.Publish(state.NewLoading[T]())

	key := c.key()
	stale, hasStale := c.cache.Lookup(key)
	if n := c.cache.EvictExpired(); n > 0 {
		c.logger.DebugContext(ctx, "Evicted expired cache entries", log.FieldCount, n)
	}

	// Serve a fresh cache hit now and keep going: the remote answer
	// replaces it below.
	if cached, ok := c.cache.Get(key); ok {
		c.publishData(cached)
		c.logger.DebugContext(ctx, "Served from cache", log.FieldSource, log.SourceCache, log.FieldCount, len(cached))
	}

	start := time.Now()
	fetched, err := c.remote.FetchAll(ctx, c.ownerID)
	if err == nil {
		records := query.DedupeAndSort(fetched)
		c.commit(ctx, records)
		c.logger.InfoContext(ctx, "Collection loaded",
			log.FieldSource, log.SourceRemote,
			log.FieldCount, len(records),
			log.FieldDuration, time.Since(start).Milliseconds())
		return nil
	}

	if snapshot, source, ok := c.fallback(ctx, stale, hasStale); ok {
		c.publishData(snapshot)
		c.logger.WarnContext(ctx, "Remote load failed, serving snapshot",
			log.FieldSource, source,
			log.FieldCount, len(snapshot),
			log.FieldError, err)
		return nil
	}

	c.holder.Publish(state.NewError[T](err, nil))
	c.logger.ErrorContext(ctx, "Remote load failed with no snapshot", log.FieldError, err)
	return fmt.Errorf("load %s: %w", key, err)
}

// fallback picks the best snapshot available after a failed remote load:
// the last published collection, then the cache entry whatever its age,
// then the local durable store.
func (c *Coordinator[T]) fallback(ctx context.Context, stale cache.Entry[[]T], hasStale bool) ([]T, string, bool) {
	c.mu.RLock()
	records, hasData := c.records, c.hasData
	c.mu.RUnlock()
	if hasData {
		return records, log.SourceMemory, true
	}
	if hasStale {
		return stale.Value, log.SourceCache, true
	}
	if c.local == nil {
		return nil, "", false
	}
	snapshot, err := c.local.ReadSnapshot(ctx, c.ownerID)
	if err != nil {
		c.logger.WarnContext(ctx, "Local snapshot unreadable", log.FieldError, err)
		return nil, "", false
	}
	if snapshot == nil {
		return nil, "", false
	}
	return query.DedupeAndSort(snapshot), log.SourceLocal, true
}

// Add creates record remotely and inserts the stored value at the front of
// the collection.
func (c *Coordinator[T]) Add(ctx context.Context, record T) (T, error) {
	return c.mutate(ctx, core.OpCreate, record,
		func(ctx context.Context) (T, error) { return c.remote.Create(ctx, record) },
		func(current []T, stored T) []T {
			return append([]T{stored}, current...)
		})
}

// Update persists record remotely and replaces the local copy with the
// value the remote returned.
func (c *Coordinator[T]) Update(ctx context.Context, record T) (T, error) {
	return c.mutate(ctx, core.OpUpdate, record,
		func(ctx context.Context) (T, error) { return c.remote.Update(ctx, record) },
		func(current []T, stored T) []T {
			out := make([]T, 0, len(current)+1)
			replaced := false
			for _, r := range current {
				if r.RecordID() == stored.RecordID() {
					out = append(out, stored)
					replaced = true
					continue
				}
				out = append(out, r)
			}
			if !replaced {
				out = append([]T{stored}, out...)
			}
			return out
		})
}

// Delete removes the record with id remotely, then locally.
func (c *Coordinator[T]) Delete(ctx context.Context, id string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.ownerID == "" {
		return core.ErrNoOwner
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return fmt.Errorf("%s %s %s: %w", core.OpDelete, c.kind, id, err)
	}
	if err := c.remote.Delete(ctx, id); err != nil {
		return c.fail(ctx, core.OpDelete, id, err)
	}

	current := c.Records()
	next := make([]T, 0, len(current))
	for _, r := range current {
		if r.RecordID() != id {
			next = append(next, r)
		}
	}
	c.commit(ctx, query.DedupeAndSort(next))
	c.announce(ctx, core.OpDelete, id)
	return nil
}

func (c *Coordinator[T]) mutate(
	ctx context.Context,
	op core.ChangeOp,
	record T,
	call func(context.Context) (T, error),
	splice func(current []T, stored T) []T,
) (T, error) {
	var zero T
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.ownerID == "" {
		return zero, core.ErrNoOwner
	}
	if record.RecordOwner() != c.ownerID {
		return zero, fmt.Errorf("%s %s: %w", op, c.kind, core.ErrOwnerMismatch)
	}
	if err := c.ensureLoaded(ctx); err != nil {
		return zero, fmt.Errorf("%s %s: %w", op, c.kind, err)
	}

	stored, err := call(ctx)
	if err != nil {
		return zero, c.fail(ctx, op, record.RecordID(), err)
	}

	c.commit(ctx, query.DedupeAndSort(splice(c.Records(), stored)))
	c.announce(ctx, op, stored.RecordID())
	return stored, nil
}

// ensureLoaded runs the load protocol when nothing has been published yet,
// so mutations splice onto a whole collection and never write a partial one
// through to the cache or the local snapshot. The caller holds opMu.
func (c *Coordinator[T]) ensureLoaded(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.hasData
	c.mu.RUnlock()
	if loaded {
		return nil
	}
	return c.loadLocked(ctx)
}

// fail publishes Error with the last known good records and returns the
// wrapped cause. Nothing was applied locally, so nothing is rolled back.
func (c *Coordinator[T]) fail(ctx context.Context, op core.ChangeOp, id string, err error) error {
	c.holder.Publish(state.NewError(err, c.lastGood()))
	c.logger.WarnContext(ctx, "Mutation failed",
		log.FieldOperation, string(op),
		log.FieldRecordID, id,
		log.FieldError, err)
	return fmt.Errorf("%s %s %s: %w", op, c.kind, id, err)
}

// commit writes records through to the cache and the local snapshot, then
// publishes them.
func (c *Coordinator[T]) commit(ctx context.Context, records []T) {
	c.cache.Set(c.key(), records)
	if c.local != nil {
		if err := c.local.WriteSnapshot(ctx, c.ownerID, records); err != nil {
			c.logger.WarnContext(ctx, "Local snapshot write failed", log.FieldError, err)
		}
	}
	c.publishData(records)
}

func (c *Coordinator[T]) publishData(records []T) {
	if records == nil {
		records = []T{}
	}
	c.mu.Lock()
	c.records = records
	c.hasData = true
	c.mu.Unlock()

	c.pages.Invalidate(c.ownerID)
	c.holder.Publish(state.NewData(records))
}

func (c *Coordinator[T]) announce(ctx context.Context, op core.ChangeOp, id string) {
	if c.publisher == nil {
		return
	}
	change := core.Change{Kind: c.kind, OwnerID: c.ownerID, RecordID: id, Op: op, At: c.now().UTC()}
	if err := c.publisher.PublishChange(ctx, change); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish change", log.FieldRecordID, id, log.FieldError, err)
	}
}

// Reset forgets the in-memory collection and publishes an empty Data
// state. Shared caches are left to the caller.
func (c *Coordinator[T]) Reset() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.records = nil
	c.hasData = false
	c.mu.Unlock()

	c.pages.Invalidate(c.ownerID)
	c.holder.Publish(state.NewData[T](nil))
}

func (c *Coordinator[T]) key() cache.Key {
	return cache.Key{Kind: c.kind, OwnerID: c.ownerID}
}
