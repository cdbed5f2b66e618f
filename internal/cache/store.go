package cache

import (
	"sync"
	"time"
)

const (
	DefaultCapacity = 1000
	DefaultTTL      = time.Hour
)

// Entry is a cached value with its write time and read count.
type Entry[V any] struct {
	Value     V
	WrittenAt time.Time
	HitCount  int
}

// Stats reports the occupancy of a store.
type Stats struct {
	Size     int
	Capacity int
}

// Store is a size- and time-bounded map. Reads never delete: an expired
// entry is a miss for Get but stays until EvictExpired or capacity eviction.
// At capacity the entry with the oldest WrittenAt is evicted, regardless of
// how often it was read.
type Store[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	entries  map[K]*Entry[V]
}

type Option func(*options)

type options struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates a store with DefaultCapacity and DefaultTTL unless overridden.
func New[K comparable, V any](opts ...Option) *Store[K, V] {
	o := options{capacity: DefaultCapacity, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[K, V]{
		capacity: o.capacity,
		ttl:      o.ttl,
		now:      o.now,
		entries:  make(map[K]*Entry[V]),
	}
}

// Get returns the value for key if it exists and is not older than the TTL.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return zero, false
	}
	e.HitCount++
	return e.Value, true
}

// Lookup returns the entry for key whatever its age, without counting a hit.
func (s *Store[K, V]) Lookup(key K) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	return *e, true
}

// Set stores value under key, resetting its write time.
func (s *Store[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.capacity {
		s.evictOldest()
	}
	s.entries[key] = &Entry[V]{Value: value, WrittenAt: s.now()}
}

// Delete removes a key from the store
func (s *Store[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// DeleteFunc removes every key for which match returns true.
func (s *Store[K, V]) DeleteFunc(match func(K) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.entries {
		if match(k) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// EvictExpired removes all entries older than the TTL and returns how many were removed.
func (s *Store[K, V]) EvictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *Store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[K]*Entry[V])
}

func (s *Store[K, V]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Size: len(s.entries), Capacity: s.capacity}
}

// TTL returns the freshness window of the store.
func (s *Store[K, V]) TTL() time.Duration {
	return s.ttl
}

func (s *Store[K, V]) expired(e *Entry[V]) bool {
	return s.now().Sub(e.WrittenAt) > s.ttl
}

// evictOldest must be called with mu held.
func (s *Store[K, V]) evictOldest() {
	var (
		oldestKey K
		oldest    time.Time
		found     bool
	)
	for k, e := range s.entries {
		if !found || e.WrittenAt.Before(oldest) {
			oldestKey, oldest, found = k, e.WrittenAt, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}
