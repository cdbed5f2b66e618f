package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"saldo/internal/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStoreTTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New[string, int](WithTTL(time.Hour), WithClock(clock.Now))

	s.Set("k", 42)

	clock.Advance(59 * time.Minute)
	if v, ok := s.Get("k"); !ok || v != 42 {
		t.Fatalf("expected hit at t0+59m, got %v %v", v, ok)
	}

	clock.Advance(2 * time.Minute)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss at t0+61m")
	}

	// Reads do not delete expired entries.
	if s.Stats().Size != 1 {
		t.Fatalf("expired entry should remain until swept, size=%d", s.Stats().Size)
	}
	if e, ok := s.Lookup("k"); !ok || e.Value != 42 {
		t.Fatal("Lookup should still return the stale entry")
	}
}

func TestStoreCapacityEvictsOldestWrite(t *testing.T) {
	clock := newFakeClock()
	s := New[string, int](WithCapacity(1000), WithClock(clock.Now))

	for i := 0; i < 1000; i++ {
		s.Set(fmt.Sprintf("k%d", i), i)
		clock.Advance(time.Second)
	}
	// Reading the oldest entry must not protect it: eviction is by write time.
	for i := 0; i < 5; i++ {
		s.Get("k0")
	}

	s.Set("k1000", 1000)

	if got := s.Stats().Size; got != 1000 {
		t.Fatalf("size = %d, want 1000", got)
	}
	if _, ok := s.Lookup("k0"); ok {
		t.Fatal("k0 had the smallest WrittenAt and should have been evicted")
	}
	for _, k := range []string{"k1", "k999", "k1000"} {
		if _, ok := s.Get(k); !ok {
			t.Fatalf("%s should still be cached", k)
		}
	}
}

func TestStoreOverwriteDoesNotEvict(t *testing.T) {
	clock := newFakeClock()
	s := New[string, string](WithCapacity(2), WithClock(clock.Now))

	s.Set("a", "1")
	clock.Advance(time.Minute)
	s.Set("b", "2")
	clock.Advance(time.Minute)
	s.Set("a", "3") // overwrite resets WrittenAt

	if s.Stats().Size != 2 {
		t.Fatalf("overwrite should not change size, got %d", s.Stats().Size)
	}

	clock.Advance(time.Minute)
	s.Set("c", "4") // b is now the oldest write

	if _, ok := s.Lookup("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := s.Get("a"); !ok || v != "3" {
		t.Fatalf("a should hold the overwritten value, got %q %v", v, ok)
	}
}

func TestStoreHitCount(t *testing.T) {
	s := New[string, int]()
	s.Set("k", 1)
	s.Get("k")
	s.Get("k")
	s.Lookup("k")

	e, _ := s.Lookup("k")
	if e.HitCount != 2 {
		t.Fatalf("HitCount = %d, want 2", e.HitCount)
	}

	s.Set("k", 2)
	e, _ = s.Lookup("k")
	if e.HitCount != 0 {
		t.Fatalf("overwrite should reset HitCount, got %d", e.HitCount)
	}
}

func TestStoreEvictExpired(t *testing.T) {
	clock := newFakeClock()
	s := New[Key, []string](WithTTL(10*time.Minute), WithClock(clock.Now))

	s.Set(Key{Kind: core.KindBudgets, OwnerID: "old"}, nil)
	clock.Advance(11 * time.Minute)
	s.Set(Key{Kind: core.KindBudgets, OwnerID: "new"}, nil)

	if n := s.EvictExpired(); n != 1 {
		t.Fatalf("EvictExpired removed %d, want 1", n)
	}
	if _, ok := s.Lookup(Key{Kind: core.KindBudgets, OwnerID: "new"}); !ok {
		t.Fatal("fresh entry should survive the sweep")
	}
}

func TestStoreDeleteFuncAndClear(t *testing.T) {
	s := New[string, int]()
	s.Set("u1_0", 0)
	s.Set("u1_1", 1)
	s.Set("u2_0", 2)

	n := s.DeleteFunc(func(k string) bool { return k[:2] == "u1" })
	if n != 2 || s.Stats().Size != 1 {
		t.Fatalf("DeleteFunc removed %d, size %d", n, s.Stats().Size)
	}

	s.Clear()
	if s.Stats().Size != 0 {
		t.Fatal("Clear should empty the store")
	}
	if s.Stats().Capacity != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", s.Stats().Capacity, DefaultCapacity)
	}
}

func TestStoreEmptyMiss(t *testing.T) {
	s := New[string, []int]()
	if v, ok := s.Get("missing"); ok || v != nil {
		t.Fatalf("expected zero miss, got %v %v", v, ok)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := New[int, int](WithCapacity(50))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s.Set(w*1000+i, i)
				s.Get(w*1000 + i)
				if i%50 == 0 {
					s.EvictExpired()
				}
			}
		}(w)
	}
	wg.Wait()

	if s.Stats().Size > 50 {
		t.Fatalf("size %d exceeds capacity", s.Stats().Size)
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Kind: core.KindTransactions, OwnerID: "u1"}
	if k.String() != "transactions_u1" {
		t.Fatalf("unexpected key %q", k.String())
	}
}
