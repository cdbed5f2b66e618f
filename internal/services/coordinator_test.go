package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/pagination"
	"saldo/internal/sheets/memory"
	"saldo/internal/state"
)

// flakyRemote wraps the in-memory store with failure injection.
type flakyRemote struct {
	*memory.Store[core.Transaction]

	mu        sync.Mutex
	fetchErr  error
	mutateErr error
	fetches   int
	normalize func(core.Transaction) core.Transaction
	// gate, when set, holds FetchAll until it is closed.
	gate chan struct{}
}

func newFlakyRemote(seed ...core.Transaction) *flakyRemote {
	return &flakyRemote{Store: memory.New(seed...)}
}

func (r *flakyRemote) setFetchErr(err error) {
	r.mu.Lock()
	r.fetchErr = err
	r.mu.Unlock()
}

func (r *flakyRemote) setMutateErr(err error) {
	r.mu.Lock()
	r.mutateErr = err
	r.mu.Unlock()
}

func (r *flakyRemote) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func (r *flakyRemote) FetchAll(ctx context.Context, ownerID string) ([]core.Transaction, error) {
	r.mu.Lock()
	r.fetches++
	err, gate := r.fetchErr, r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return r.Store.FetchAll(ctx, ownerID)
}

func (r *flakyRemote) Create(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := r.mutationErr(); err != nil {
		return core.Transaction{}, err
	}
	return r.Store.Create(ctx, tx)
}

func (r *flakyRemote) Update(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := r.mutationErr(); err != nil {
		return core.Transaction{}, err
	}
	if r.normalize != nil {
		tx = r.normalize(tx)
	}
	return r.Store.Update(ctx, tx)
}

func (r *flakyRemote) Delete(ctx context.Context, id string) error {
	if err := r.mutationErr(); err != nil {
		return err
	}
	return r.Store.Delete(ctx, id)
}

func (r *flakyRemote) mutationErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mutateErr
}

type memSnapshots struct {
	mu     sync.Mutex
	data   map[string][]core.Transaction
	writes int
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{data: make(map[string][]core.Transaction)}
}

func (m *memSnapshots) ReadSnapshot(_ context.Context, ownerID string) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[ownerID], nil
}

func (m *memSnapshots) WriteSnapshot(_ context.Context, ownerID string, records []core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[ownerID] = append([]core.Transaction{}, records...)
	m.writes++
	return nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []core.Change
	err     error
}

func (p *recordingPublisher) PublishChange(_ context.Context, c core.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}

func (p *recordingPublisher) all() []core.Change {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Change(nil), p.changes...)
}

func tx(id string, day int) core.Transaction {
	return core.Transaction{
		ID:          id,
		OwnerID:     "u1",
		Date:        core.NewDate(2025, 3, day),
		Description: "tx " + id,
		Amount:      core.Money{Cents: int64(100 * day)},
		Category:    "Cibo",
		Type:        core.Expense,
	}
}

func txKey() cache.Key {
	return cache.Key{Kind: core.KindTransactions, OwnerID: "u1"}
}

func newTestCoordinator(t *testing.T, remote *flakyRemote, mutate func(*CoordinatorConfig[core.Transaction])) *Coordinator[core.Transaction] {
	t.Helper()
	cfg := CoordinatorConfig[core.Transaction]{
		Kind:    core.KindTransactions,
		OwnerID: "u1",
		Remote:  remote,
		Cache:   cache.New[cache.Key, []core.Transaction](),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c
}

func ids(records []core.Transaction) string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return strings.Join(out, ",")
}

func TestNewCoordinatorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  CoordinatorConfig[core.Transaction]
	}{
		{"invalid kind", CoordinatorConfig[core.Transaction]{Kind: "bogus", Remote: newFlakyRemote()}},
		{"missing remote", CoordinatorConfig[core.Transaction]{Kind: core.KindTransactions}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCoordinator(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCoordinatorStartsInLoading(t *testing.T) {
	c := newTestCoordinator(t, newFlakyRemote(), nil)
	if !c.State().IsLoading() {
		t.Fatalf("expected Loading, got %s", c.State().Status)
	}
}

func TestCoordinatorRefreshPublishesSortedData(t *testing.T) {
	remote := newFlakyRemote(tx("a", 1), tx("b", 9), tx("c", 5))
	c := newTestCoordinator(t, remote, nil)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	st := c.State()
	if !st.IsData() {
		t.Fatalf("expected Data, got %s", st.Status)
	}
	if got := ids(st.Records); got != "b,c,a" {
		t.Errorf("expected newest first b,c,a, got %s", got)
	}
	cached, ok := c.cache.Get(txKey())
	if !ok || ids(cached) != "b,c,a" {
		t.Errorf("expected cache to hold the loaded collection, got %v %s", ok, ids(cached))
	}
}

func TestCoordinatorDegradesToCachedSnapshot(t *testing.T) {
	remote := newFlakyRemote()
	remote.setFetchErr(fmt.Errorf("dial: %w", core.ErrRemoteUnavailable))
	c := newTestCoordinator(t, remote, nil)

	c.cache.Set(txKey(), []core.Transaction{tx("1", 1), tx("2", 2), tx("3", 3), tx("4", 4), tx("5", 5)})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("a cached snapshot should absorb the failure, got %v", err)
	}
	st := c.State()
	if !st.IsData() || len(st.Records) != 5 {
		t.Fatalf("expected Data with 5 records, got %s with %d", st.Status, len(st.Records))
	}
	if remote.fetchCount() != 1 {
		t.Errorf("expected the remote to be tried once, got %d", remote.fetchCount())
	}
}

func TestCoordinatorFallsBackToExpiredCacheEntry(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	remote := newFlakyRemote()
	remote.setFetchErr(core.ErrRemoteUnavailable)
	c := newTestCoordinator(t, remote, func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Cache = cache.New[cache.Key, []core.Transaction](cache.WithClock(clock))
	})

	c.cache.Set(txKey(), []core.Transaction{tx("old", 1)})
	now = now.Add(2 * time.Hour)

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("expected stale entry to be used, got %v", err)
	}
	if got := ids(c.State().Records); got != "old" {
		t.Errorf("expected the expired entry, got %q", got)
	}
}

func TestCoordinatorFallsBackToLocalSnapshot(t *testing.T) {
	local := newMemSnapshots()
	local.data["u1"] = []core.Transaction{tx("x", 2), tx("y", 8)}

	remote := newFlakyRemote()
	remote.setFetchErr(core.ErrRemoteUnavailable)
	c := newTestCoordinator(t, remote, func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Local = local
	})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("expected local snapshot to be used, got %v", err)
	}
	if got := ids(c.State().Records); got != "y,x" {
		t.Errorf("expected y,x from the local snapshot, got %q", got)
	}
}

func TestCoordinatorErrorWithoutFallbackThenRetry(t *testing.T) {
	remote := newFlakyRemote(tx("a", 1))
	remote.setFetchErr(fmt.Errorf("timeout: %w", core.ErrRemoteUnavailable))
	c := newTestCoordinator(t, remote, nil)

	err := c.Refresh(context.Background())
	if !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	st := c.State()
	if !st.IsError() || st.Records != nil {
		t.Fatalf("expected Error with no records, got %s with %d", st.Status, len(st.Records))
	}

	remote.setFetchErr(nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st := c.State(); !st.IsData() || len(st.Records) != 1 {
		t.Fatalf("expected Data after retry, got %s", st.Status)
	}
}

func TestCoordinatorRevalidatesFreshCacheHit(t *testing.T) {
	remote := newFlakyRemote(tx("a", 1), tx("b", 2))
	c := newTestCoordinator(t, remote, nil)
	c.cache.Set(txKey(), []core.Transaction{tx("a", 1)})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if remote.fetchCount() != 1 {
		t.Fatalf("a cache hit must still be revalidated, fetches=%d", remote.fetchCount())
	}
	if got := ids(c.State().Records); got != "b,a" {
		t.Errorf("expected remote result b,a, got %s", got)
	}
}

func TestCoordinatorEmptyOwner(t *testing.T) {
	remote := newFlakyRemote(tx("a", 1))
	c := newTestCoordinator(t, remote, func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.OwnerID = ""
	})

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	st := c.State()
	if !st.IsData() || len(st.Records) != 0 || st.Records == nil {
		t.Fatalf("expected empty Data, got %s %v", st.Status, st.Records)
	}
	if remote.fetchCount() != 0 {
		t.Errorf("no owner means no remote call, got %d", remote.fetchCount())
	}
	if _, err := c.Add(context.Background(), tx("", 3)); !errors.Is(err, core.ErrNoOwner) {
		t.Errorf("expected ErrNoOwner, got %v", err)
	}
}

func TestCoordinatorAddIsWriteThrough(t *testing.T) {
	ctx := context.Background()
	local := newMemSnapshots()
	pub := &recordingPublisher{}
	remote := newFlakyRemote(tx("a", 1), tx("b", 2))
	c := newTestCoordinator(t, remote, func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Local = local
		cfg.Publisher = pub
	})
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	stored, err := c.Add(ctx, tx("", 20))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("expected the remote-assigned id")
	}

	st := c.State()
	if !st.IsData() || len(st.Records) != 3 || st.Records[0].ID != stored.ID {
		t.Fatalf("expected new record first in Data, got %s %s", st.Status, ids(st.Records))
	}
	cached, _ := c.cache.Get(txKey())
	if len(cached) != 3 {
		t.Errorf("expected cache to be written through, got %d", len(cached))
	}
	if len(local.data["u1"]) != 3 {
		t.Errorf("expected local snapshot to be written through, got %d", len(local.data["u1"]))
	}

	changes := pub.all()
	if len(changes) != 1 || changes[0].Op != core.OpCreate || changes[0].RecordID != stored.ID || changes[0].Kind != core.KindTransactions {
		t.Errorf("unexpected changes %+v", changes)
	}
}

func TestCoordinatorUpdateUsesRemoteValue(t *testing.T) {
	ctx := context.Background()
	remote := newFlakyRemote(tx("a", 1), tx("b", 2))
	remote.normalize = func(r core.Transaction) core.Transaction {
		r.Description = strings.ToUpper(r.Description)
		return r
	}
	c := newTestCoordinator(t, remote, nil)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	edit := tx("a", 1)
	edit.Description = "lunch"
	stored, err := c.Update(ctx, edit)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if stored.Description != "LUNCH" {
		t.Fatalf("expected the remote's value, got %q", stored.Description)
	}

	var found bool
	for _, r := range c.State().Records {
		if r.ID == "a" {
			found = true
			if r.Description != "LUNCH" {
				t.Errorf("local copy should match the remote, got %q", r.Description)
			}
		}
	}
	if !found {
		t.Fatal("updated record missing from state")
	}
	if n := len(c.State().Records); n != 2 {
		t.Errorf("update must not duplicate, got %d records", n)
	}
}

func TestCoordinatorMutationFailureKeepsLastGood(t *testing.T) {
	ctx := context.Background()
	remote := newFlakyRemote(tx("a", 1), tx("b", 2))
	c := newTestCoordinator(t, remote, nil)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	remote.setMutateErr(core.ErrRemoteUnavailable)
	_, err := c.Add(ctx, tx("", 5))
	if !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}

	st := c.State()
	if !st.IsError() {
		t.Fatalf("expected Error, got %s", st.Status)
	}
	if got := ids(st.Records); got != "b,a" {
		t.Errorf("Error should carry the last good records, got %q", got)
	}
	cached, _ := c.cache.Get(txKey())
	if len(cached) != 2 {
		t.Errorf("failed mutation must not touch the cache, got %d", len(cached))
	}
	if got := ids(c.Records()); got != "b,a" {
		t.Errorf("records should be unchanged, got %q", got)
	}
}

func TestCoordinatorUpdateMissingRecord(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, newFlakyRemote(tx("a", 1)), nil)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	_, err := c.Update(ctx, tx("ghost", 3))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := c.Delete(ctx, "ghost"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestCoordinatorDelete(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	c := newTestCoordinator(t, newFlakyRemote(tx("a", 1), tx("b", 2)), func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Publisher = pub
	})
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("a failing publisher must not fail the delete: %v", err)
	}
	if got := ids(c.State().Records); got != "b" {
		t.Errorf("expected b, got %q", got)
	}
	if changes := pub.all(); len(changes) != 1 || changes[0].Op != core.OpDelete {
		t.Errorf("unexpected changes %+v", changes)
	}
}

func TestCoordinatorRejectsForeignRecord(t *testing.T) {
	c := newTestCoordinator(t, newFlakyRemote(), nil)
	foreign := tx("", 1)
	foreign.OwnerID = "someone-else"
	if _, err := c.Add(context.Background(), foreign); !errors.Is(err, core.ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestCoordinatorPagesFollowMutations(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, newFlakyRemote(tx("a", 1), tx("b", 2), tx("c", 3)), func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Pages = pagination.NewIndex[core.Transaction](core.KindTransactions, nil)
	})
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := ids(c.Page(0, 2).Items); got != "c,b" {
		t.Fatalf("page 0: got %s", got)
	}
	stored, err := c.Add(ctx, tx("", 9))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := ids(c.Page(0, 2).Items); got != stored.ID+",c" {
		t.Errorf("page 0 after add: got %s", got)
	}
	if got := ids(c.Page(1, 2).Items); got != "b,a" {
		t.Errorf("page 1 after add: got %s", got)
	}
}

func TestCoordinatorStartLoadsInBackground(t *testing.T) {
	c := newTestCoordinator(t, newFlakyRemote(tx("a", 1)), nil)
	updates, cancel := c.Subscribe()
	defer cancel()

	c.Start(context.Background())

	timeout := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.IsData() && len(st.Records) == 1 {
				return
			}
		case <-timeout:
			t.Fatalf("no Data state observed, last %s", c.State().Status)
		}
	}
}

func TestCoordinatorConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	c := newTestCoordinator(t, newFlakyRemote(), nil)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			if _, err := c.Add(ctx, tx("", day)); err != nil {
				t.Errorf("Add: %v", err)
			}
		}(i)
		if i%5 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Refresh(ctx)
			}()
		}
	}
	wg.Wait()

	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n := len(c.State().Records); n != 20 {
		t.Fatalf("expected 20 records, got %d", n)
	}
}

func TestCoordinatorReset(t *testing.T) {
	c := newTestCoordinator(t, newFlakyRemote(tx("a", 1)), nil)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	c.Reset()
	st := c.State()
	if st.Status != state.Data || len(st.Records) != 0 {
		t.Fatalf("expected empty Data after reset, got %s %d", st.Status, len(st.Records))
	}
	if len(c.Records()) != 0 {
		t.Error("records should be forgotten")
	}
}

func TestCoordinatorMutationBeforeFirstLoad(t *testing.T) {
	ctx := context.Background()
	local := newMemSnapshots()
	local.data["u1"] = []core.Transaction{tx("a", 1), tx("b", 2), tx("c", 3)}
	remote := newFlakyRemote(tx("a", 1), tx("b", 2), tx("c", 3))
	c := newTestCoordinator(t, remote, func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Local = local
	})

	stored, err := c.Add(ctx, tx("", 20))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if n := len(c.State().Records); n != 4 {
		t.Fatalf("expected the whole collection in state, got %d records", n)
	}
	if c.State().Records[0].ID != stored.ID {
		t.Errorf("expected the new record first, got %s", ids(c.State().Records))
	}
	cached, _ := c.cache.Get(txKey())
	if len(cached) != 4 {
		t.Errorf("expected 4 cached records, got %d", len(cached))
	}
	if n := len(local.data["u1"]); n != 4 {
		t.Errorf("expected 4 records in the local snapshot, got %d", n)
	}

	// A fresh coordinator that cannot reach the remote serves the full snapshot.
	remote.setFetchErr(core.ErrRemoteUnavailable)
	offline := newTestCoordinator(t, remote, func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Local = local
	})
	if err := offline.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st := offline.State(); !st.IsData() || len(st.Records) != 4 {
		t.Fatalf("expected Data with 4 records, got %s with %d", st.Status, len(st.Records))
	}
}

func TestCoordinatorDeleteBeforeFirstLoad(t *testing.T) {
	ctx := context.Background()
	local := newMemSnapshots()
	c := newTestCoordinator(t, newFlakyRemote(tx("a", 1), tx("b", 2), tx("c", 3)), func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Local = local
	})

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := ids(c.State().Records); got != "c,b" {
		t.Errorf("expected c,b, got %q", got)
	}
	if got := ids(local.data["u1"]); got != "c,b" {
		t.Errorf("expected snapshot c,b, got %q", got)
	}
}

func TestCoordinatorMutationWithoutAnyCollection(t *testing.T) {
	ctx := context.Background()
	local := newMemSnapshots()
	remote := newFlakyRemote(tx("a", 1))
	remote.setFetchErr(core.ErrRemoteUnavailable)
	c := newTestCoordinator(t, remote, func(cfg *CoordinatorConfig[core.Transaction]) {
		cfg.Local = local
	})

	if _, err := c.Add(ctx, tx("", 5)); !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	if remote.Len() != 1 {
		t.Errorf("remote must not be written without a collection to splice onto, holds %d", remote.Len())
	}
	if _, ok := local.data["u1"]; ok {
		t.Error("local snapshot must not be written")
	}
	if _, ok := c.cache.Lookup(txKey()); ok {
		t.Error("cache must not be written")
	}
	if !c.State().IsError() {
		t.Errorf("expected Error, got %s", c.State().Status)
	}
}

func TestCoordinatorRefreshSurvivesCanceledCaller(t *testing.T) {
	remote := newFlakyRemote(tx("a", 1))
	remote.gate = make(chan struct{})
	c := newTestCoordinator(t, remote, nil)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- c.Refresh(first) }()

	deadline := time.Now().Add(time.Second)
	for remote.fetchCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("load never reached the remote")
		}
		time.Sleep(time.Millisecond)
	}

	secondErr := make(chan error, 1)
	go func() { secondErr <- c.Refresh(context.Background()) }()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("canceled caller: expected context.Canceled, got %v", err)
	}

	close(remote.gate)
	if err := <-secondErr; err != nil {
		t.Fatalf("other caller should not see the cancellation: %v", err)
	}
	if st := c.State(); !st.IsData() || ids(st.Records) != "a" {
		t.Fatalf("expected Data a, got %s %q", st.Status, ids(st.Records))
	}
}
