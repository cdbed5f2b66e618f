// Package pagination slices an owner's deduplicated, sorted collection into
// fixed-size pages and caches them until the collection is republished.
package pagination

import (
	"fmt"
	"math"
	"sync"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/query"
)

const DefaultPageSize = 50

// Page is one slice of a collection.
type Page[T any] struct {
	Items []T
	Index int
}

// PageKey identifies a cached page. Size is part of the key so that
// different page sizes never share an entry.
type PageKey struct {
	Kind    core.Kind
	OwnerID string
	Index   int
	Size    int
}

// String renders the key as "<kind>_<owner>_<index>".
func (k PageKey) String() string {
	return fmt.Sprintf("%s_%s_%d", k.Kind, k.OwnerID, k.Index)
}

// Index derives and caches pages for one record kind across owners.
//
// Each owner has a generation that Invalidate bumps. A page computed under
// an older generation is returned but never cached.
type Index[T core.Record] struct {
	kind  core.Kind
	pages *cache.Store[PageKey, Page[T]]

	mu   sync.Mutex
	gens map[string]uint64
}

// NewIndex creates a page index backed by store. A nil store gets a default one.
func NewIndex[T core.Record](kind core.Kind, store *cache.Store[PageKey, Page[T]]) *Index[T] {
	if store == nil {
		store = cache.New[PageKey, Page[T]]()
	}
	return &Index[T]{kind: kind, pages: store, gens: make(map[string]uint64)}
}

// Page returns page pageNumber of the owner's collection. collection is only
// called on a cache miss. Out-of-range pages are empty, never an error.
func (ix *Index[T]) Page(ownerID string, pageNumber, pageSize int, collection func() []T) Page[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageNumber < 0 {
		return Page[T]{Index: pageNumber}
	}
	// No collection fits this far out, and pageNumber*pageSize would overflow.
	if pageNumber > (math.MaxInt-pageSize)/pageSize {
		return Page[T]{Items: []T{}, Index: pageNumber}
	}

	key := PageKey{Kind: ix.kind, OwnerID: ownerID, Index: pageNumber, Size: pageSize}
	if p, ok := ix.pages.Get(key); ok {
		return p
	}

	gen := ix.generation(ownerID)
	all := query.DedupeAndSort(collection())
	start := pageNumber * pageSize
	if start >= len(all) {
		return Page[T]{Items: []T{}, Index: pageNumber}
	}
	end := min(start+pageSize, len(all))

	p := Page[T]{Items: append([]T(nil), all[start:end]...), Index: pageNumber}

	ix.mu.Lock()
	if ix.gens[ownerID] == gen {
		ix.pages.Set(key, p)
	}
	ix.mu.Unlock()
	return p
}

func (ix *Index[T]) generation(ownerID string) uint64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.gens[ownerID]
}

// Invalidate drops every cached page of the owner and returns how many were dropped.
func (ix *Index[T]) Invalidate(ownerID string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.gens[ownerID]++
	return ix.pages.DeleteFunc(func(k PageKey) bool {
		return k.OwnerID == ownerID
	})
}

// Store exposes the page cache so a session can register it for sweeps.
func (ix *Index[T]) Store() *cache.Store[PageKey, Page[T]] {
	return ix.pages
}

// PageCount returns how many pages of size hold total items.
func PageCount(total, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	return (total + size - 1) / size
}
