package google

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

// Worksheet titles, one per record kind.
const (
	SheetTransactions = "Transactions"
	SheetBudgets      = "Budgets"
	SheetCategories   = "Categories"
	SheetGoals        = "Goals"
)

// Codec converts a record to and from a worksheet row. Rows start with the
// id and owner columns.
type Codec[T any] interface {
	Encode(T) []any
	Decode(cols []string) (T, error)
}

var errShortRow = errors.New("row has too few columns")

func Transactions(c *Client) *Table[core.Transaction] {
	return NewTable[core.Transaction](c, SheetTransactions, TransactionCodec{})
}

func Budgets(c *Client) *Table[core.Budget] {
	return NewTable[core.Budget](c, SheetBudgets, BudgetCodec{})
}

func Categories(c *Client) *Table[core.Category] {
	return NewTable[core.Category](c, SheetCategories, CategoryCodec{})
}

func Goals(c *Client) *Table[core.Goal] {
	return NewTable[core.Goal](c, SheetGoals, GoalCodec{})
}

// TransactionCodec: id | owner | date | description | amount | category | type
type TransactionCodec struct{}

func (TransactionCodec) Encode(t core.Transaction) []any {
	return []any{t.ID, t.OwnerID, t.Date.String(), t.Description, formatAmount(t.Amount), t.Category, string(t.Type)}
}

func (TransactionCodec) Decode(cols []string) (core.Transaction, error) {
	if len(cols) < 7 {
		return core.Transaction{}, errShortRow
	}
	date, err := core.ParseDate(cols[2])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("date %q: %w", cols[2], err)
	}
	amount, err := parseAmount(cols[4])
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:          cols[0],
		OwnerID:     cols[1],
		Date:        date,
		Description: cols[3],
		Amount:      amount,
		Category:    cols[5],
		Type:        core.TransactionType(strings.ToLower(cols[6])),
	}, nil
}

// BudgetCodec: id | owner | category | amount | period start | period end
type BudgetCodec struct{}

func (BudgetCodec) Encode(b core.Budget) []any {
	return []any{b.ID, b.OwnerID, b.Category, formatAmount(b.Amount), b.PeriodStart.String(), b.PeriodEnd.String()}
}

func (BudgetCodec) Decode(cols []string) (core.Budget, error) {
	if len(cols) < 5 {
		return core.Budget{}, errShortRow
	}
	amount, err := parseAmount(cols[3])
	if err != nil {
		return core.Budget{}, err
	}
	start, err := core.ParseDate(cols[4])
	if err != nil {
		return core.Budget{}, fmt.Errorf("period start %q: %w", cols[4], err)
	}
	end, err := optionalDate(safeGet(cols, 5))
	if err != nil {
		return core.Budget{}, fmt.Errorf("period end: %w", err)
	}
	return core.Budget{
		ID:          cols[0],
		OwnerID:     cols[1],
		Category:    cols[2],
		Amount:      amount,
		PeriodStart: start,
		PeriodEnd:   end,
	}, nil
}

// CategoryCodec: id | owner | name | type | created at
type CategoryCodec struct{}

func (CategoryCodec) Encode(c core.Category) []any {
	return []any{c.ID, c.OwnerID, c.Name, string(c.Type), formatTime(c.CreatedAt)}
}

func (CategoryCodec) Decode(cols []string) (core.Category, error) {
	if len(cols) < 4 {
		return core.Category{}, errShortRow
	}
	created, err := optionalTime(safeGet(cols, 4))
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{
		ID:        cols[0],
		OwnerID:   cols[1],
		Name:      cols[2],
		Type:      core.TransactionType(strings.ToLower(cols[3])),
		CreatedAt: created,
	}, nil
}

// GoalCodec: id | owner | name | target | saved | deadline | created at
type GoalCodec struct{}

func (GoalCodec) Encode(g core.Goal) []any {
	return []any{g.ID, g.OwnerID, g.Name, formatAmount(g.Target), formatAmount(g.Saved), g.Deadline.String(), formatTime(g.CreatedAt)}
}

func (GoalCodec) Decode(cols []string) (core.Goal, error) {
	if len(cols) < 5 {
		return core.Goal{}, errShortRow
	}
	target, err := parseAmount(cols[3])
	if err != nil {
		return core.Goal{}, err
	}
	saved, err := parseAmount(cols[4])
	if err != nil {
		return core.Goal{}, err
	}
	deadline, err := optionalDate(safeGet(cols, 5))
	if err != nil {
		return core.Goal{}, fmt.Errorf("deadline: %w", err)
	}
	created, err := optionalTime(safeGet(cols, 6))
	if err != nil {
		return core.Goal{}, err
	}
	return core.Goal{
		ID:        cols[0],
		OwnerID:   cols[1],
		Name:      cols[2],
		Target:    target,
		Saved:     saved,
		Deadline:  deadline,
		CreatedAt: created,
	}, nil
}

// parseAmount reads a euro amount cell. Both "12.34" and "12,34" are
// accepted, as is a leading currency sign.
func parseAmount(s string) (core.Money, error) {
	clean := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "€"))
	clean = strings.ReplaceAll(clean, ",", ".")
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return core.Money{}, fmt.Errorf("amount %q: %w", s, core.ErrInvalidAmount)
	}
	return core.Money{Cents: d.Shift(2).Round(0).IntPart()}, nil
}

func formatAmount(m core.Money) string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}

func optionalDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q: %w", s, err)
	}
	return t, nil
}
