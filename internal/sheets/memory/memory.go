package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"saldo/internal/core"
	"saldo/internal/sheets"
)

// Store is an in-process RecordStore. It validates like a real remote and
// assigns UUIDs to records created without an id.
type Store[T core.Entity[T]] struct {
	mu    sync.Mutex
	items map[string]T
	order []string
	newID func() string
}

var (
	_ sheets.RecordStore[core.Transaction] = (*Store[core.Transaction])(nil)
	_ sheets.RecordStore[core.Goal]        = (*Store[core.Goal])(nil)
)

func New[T core.Entity[T]](seed ...T) *Store[T] {
	s := &Store[T]{
		items: make(map[string]T),
		newID: uuid.NewString,
	}
	for _, r := range seed {
		if r.RecordID() == "" {
			r = r.WithID(s.newID())
		}
		s.put(r)
	}
	return s
}

func (s *Store[T]) FetchAll(_ context.Context, ownerID string) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		if r := s.items[id]; r.RecordOwner() == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Create stores the record and returns it with its assigned id.
func (s *Store[T]) Create(_ context.Context, record T) (T, error) {
	var zero T
	if err := record.Validate(); err != nil {
		return zero, fmt.Errorf("%w: %w", core.ErrRemoteRejected, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.RecordID() == "" {
		record = record.WithID(s.newID())
	}
	if _, exists := s.items[record.RecordID()]; exists {
		return zero, fmt.Errorf("%w: duplicate id %s", core.ErrRemoteRejected, record.RecordID())
	}
	s.put(record)
	return record, nil
}

func (s *Store[T]) Update(_ context.Context, record T) (T, error) {
	var zero T
	if err := record.Validate(); err != nil {
		return zero, fmt.Errorf("%w: %w", core.ErrRemoteRejected, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[record.RecordID()]; !exists {
		return zero, fmt.Errorf("update %s: %w", record.RecordID(), core.ErrNotFound)
	}
	s.items[record.RecordID()] = record
	return record, nil
}

func (s *Store[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return fmt.Errorf("delete %s: %w", id, core.ErrNotFound)
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of records across all owners.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store[T]) put(r T) {
	if _, exists := s.items[r.RecordID()]; !exists {
		s.order = append(s.order, r.RecordID())
	}
	s.items[r.RecordID()] = r
}

// NewCategoriesFromFiles seeds a category store for ownerID from
// seed_categories.txt (expense) and seed_income_categories.txt (income)
// in base, falling back to a small default set when the files are missing.
func NewCategoriesFromFiles(base, ownerID string) *Store[core.Category] {
	expense := readLines(filepath.Join(base, "seed_categories.txt"))
	income := readLines(filepath.Join(base, "seed_income_categories.txt"))
	if len(expense) == 0 {
		expense = []string{"Casa", "Cibo", "Trasporti"}
	}
	if len(income) == 0 {
		income = []string{"Stipendio"}
	}
	if ownerID == "" {
		return New[core.Category]()
	}

	created := time.Now().UTC()
	seed := make([]core.Category, 0, len(expense)+len(income))
	add := func(names []string, typ core.TransactionType) {
		for _, name := range names {
			seed = append(seed, core.Category{
				ID:        fmt.Sprintf("%s-%s-%s", ownerID, typ, strings.ToLower(name)),
				OwnerID:   ownerID,
				Name:      name,
				Type:      typ,
				CreatedAt: created,
			})
		}
	}
	add(expense, core.Expense)
	add(income, core.Income)
	return New(seed...)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return dedupe(out)
}

// dedupe drops blanks and repeats, preserving input order.
func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
