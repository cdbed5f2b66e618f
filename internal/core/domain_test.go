package core

import (
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	if err := NewDate(2025, 1, 1).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Date{}).Validate(); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate for zero date, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-07")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2025-03-07" {
		t.Fatalf("unexpected date %s", d)
	}
	if _, err := ParseDate("07/03/2025"); err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}

func TestKindIsValid(t *testing.T) {
	for _, k := range Kinds() {
		if !k.IsValid() {
			t.Errorf("kind %q should be valid", k)
		}
	}
	if Kind("wallets").IsValid() {
		t.Error("unknown kind should be invalid")
	}
}

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		OwnerID:     "u1",
		Date:        NewDate(2025, 1, 1),
		Description: "groceries",
		Amount:      Money{Cents: 100},
		Category:    "food",
		Type:        Expense,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Transaction)
		want   error
	}{
		{"no owner", func(tx *Transaction) { tx.OwnerID = "" }, ErrEmptyOwner},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }, ErrInvalidDate},
		{"blank description", func(tx *Transaction) { tx.Description = "  " }, ErrEmptyDescription},
		{"zero amount", func(tx *Transaction) { tx.Amount = Money{} }, ErrInvalidAmount},
		{"no category", func(tx *Transaction) { tx.Category = "" }, ErrEmptyCategory},
		{"bad type", func(tx *Transaction) { tx.Type = "transfer" }, ErrInvalidType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := good
			tt.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBudgetValidatePeriod(t *testing.T) {
	b := Budget{
		OwnerID:     "u1",
		Category:    "food",
		Amount:      Money{Cents: 50000},
		PeriodStart: NewDate(2025, 2, 1),
		PeriodEnd:   NewDate(2025, 1, 1),
	}
	if err := b.Validate(); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	b.PeriodEnd = Date{}
	if err := b.Validate(); err != nil {
		t.Fatalf("open-ended budget should validate, got %v", err)
	}
}

func TestWithIDKeepsOtherFields(t *testing.T) {
	g := Goal{OwnerID: "u1", Name: "bike", Target: Money{Cents: 1000}, CreatedAt: time.Unix(10, 0)}
	got := g.WithID("g1")
	if got.ID != "g1" || got.Name != "bike" || g.ID != "" {
		t.Fatalf("WithID should copy, got %+v (orig %+v)", got, g)
	}
}
