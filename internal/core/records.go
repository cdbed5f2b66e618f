package core

import (
	"strings"
	"time"
)

const maxDescriptionLen = 200

// Transaction is a single expense or income movement.
type Transaction struct {
	ID          string
	OwnerID     string
	Date        Date
	Description string
	Amount      Money
	Category    string
	Type        TransactionType
}

func (t Transaction) RecordID() string    { return t.ID }
func (t Transaction) RecordOwner() string { return t.OwnerID }
func (t Transaction) SortTime() time.Time { return t.Date.Time }

func (t Transaction) WithID(id string) Transaction {
	t.ID = id
	return t
}

func (t Transaction) IsExpense() bool {
	return t.Type == Expense
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > maxDescriptionLen {
		return ErrDescriptionTooLong
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

// Budget caps spending in one category over [PeriodStart, PeriodEnd].
type Budget struct {
	ID          string
	OwnerID     string
	Category    string
	Amount      Money
	PeriodStart Date
	PeriodEnd   Date
}

func (b Budget) RecordID() string    { return b.ID }
func (b Budget) RecordOwner() string { return b.OwnerID }
func (b Budget) SortTime() time.Time { return b.PeriodStart.Time }

func (b Budget) WithID(id string) Budget {
	b.ID = id
	return b
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if err := b.PeriodStart.Validate(); err != nil {
		return err
	}
	// Open-ended budgets have no end date.
	if !b.PeriodEnd.IsZero() && b.PeriodEnd.Before(b.PeriodStart.Time) {
		return ErrInvalidPeriod
	}
	return nil
}

// Category is a user-defined label for transactions of one type.
type Category struct {
	ID        string
	OwnerID   string
	Name      string
	Type      TransactionType
	CreatedAt time.Time
}

func (c Category) RecordID() string    { return c.ID }
func (c Category) RecordOwner() string { return c.OwnerID }
func (c Category) SortTime() time.Time { return c.CreatedAt }

func (c Category) WithID(id string) Category {
	c.ID = id
	return c
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if !c.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

// Goal is a savings target.
type Goal struct {
	ID        string
	OwnerID   string
	Name      string
	Target    Money
	Saved     Money
	Deadline  Date
	CreatedAt time.Time
}

func (g Goal) RecordID() string    { return g.ID }
func (g Goal) RecordOwner() string { return g.OwnerID }
func (g Goal) SortTime() time.Time { return g.CreatedAt }

func (g Goal) WithID(id string) Goal {
	g.ID = id
	return g
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if err := g.Target.Validate(); err != nil {
		return err
	}
	if g.Saved.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Reached reports whether the saved amount covers the target.
func (g Goal) Reached() bool {
	return g.Saved.Cents >= g.Target.Cents
}
