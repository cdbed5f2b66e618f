package core

import (
	"errors"
	"time"
)

const (
	KindTransactions Kind = "transactions"
	KindBudgets      Kind = "budgets"
	KindCategories   Kind = "categories"
	KindGoals        Kind = "goals"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

type (
	// Kind names a record collection. It is the first half of every cache key.
	Kind string

	TransactionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Record is the common surface of every cached record kind.
	Record interface {
		RecordID() string
		RecordOwner() string
		// SortTime is the per-kind date collections are ordered by, newest first.
		SortTime() time.Time
	}

	// Entity is a Record that a persistence adapter can validate and stamp with an id.
	Entity[T any] interface {
		Record
		WithID(id string) T
		Validate() error
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidPeriod    = errors.New("period end must not precede period start")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyOwner       = errors.New("empty owner")
)

// Kinds returns every record kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindTransactions, KindBudgets, KindCategories, KindGoals}
}

func (k Kind) String() string {
	return string(k)
}

// IsValid reports whether k is one of the known record kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindTransactions, KindBudgets, KindCategories, KindGoals:
		return true
	default:
		return false
	}
}

func (t TransactionType) IsValid() bool {
	return t == Expense || t == Income
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location, stored at UTC
// midnight like every other Date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses an ISO yyyy-mm-dd date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as yyyy-mm-dd; the zero date formats as "".
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}
