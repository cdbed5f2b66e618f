package cache

import (
	"sync"

	"saldo/internal/core"
)

// Key identifies one owner's collection of one record kind.
type Key struct {
	Kind    core.Kind
	OwnerID string
}

// String renders the key as "<kind>_<owner>".
func (k Key) String() string {
	return string(k.Kind) + "_" + k.OwnerID
}

// Sweeper is a cache that can drop expired and all entries.
type Sweeper interface {
	EvictExpired() int
	Clear()
}

// Manager groups the per-kind stores of a session so they can be swept or
// reset together. Sweeps are caller driven; nothing runs on a timer.
type Manager struct {
	mu     sync.Mutex
	caches []Sweeper
}

// NewManager creates a new cache manager
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a cache to the manager
func (m *Manager) Register(c Sweeper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// EvictExpired sweeps every registered cache and returns the number of entries removed.
func (m *Manager) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for _, c := range m.caches {
		total += c.EvictExpired()
	}
	return total
}

// ClearAll empties every registered cache, e.g. on sign-out.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.caches {
		c.Clear()
	}
}
