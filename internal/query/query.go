// Package query holds pure, stateless functions over record collections
// already held in memory: dedupe, sort, filter and aggregate.
package query

import (
	"sort"
	"time"

	"saldo/internal/core"
)

// DedupeAndSort drops records whose id was already seen (first occurrence
// wins, in input order) and sorts the rest by SortTime, newest first. The
// sort is stable so equal dates keep their relative order, which makes the
// function idempotent. The input slice is not modified.
func DedupeAndSort[T core.Record](records []T) []T {
	seen := make(map[string]struct{}, len(records))
	out := make([]T, 0, len(records))
	for _, r := range records {
		id := r.RecordID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortTime().After(out[j].SortTime())
	})
	return out
}

// DateRange is an inclusive [From, To] window. A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// MonthOf returns the calendar month containing t as a half-open window:
// start is the first instant of the month and end the first instant of the
// next one, both in t's location.
func MonthOf(t time.Time) (start, end time.Time) {
	y, m, _ := t.Date()
	start = time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, 0)
}

// Filter holds independent constraints over transactions. Nil or empty
// fields impose no restriction.
type Filter struct {
	Category  string
	From      *time.Time
	To        *time.Time
	Type      core.TransactionType
	MinAmount *core.Money
	MaxAmount *core.Money
}

// Match reports whether tx satisfies every set constraint.
func (f Filter) Match(tx core.Transaction) bool {
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.From != nil && tx.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && tx.Date.After(*f.To) {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.MinAmount != nil && tx.Amount.Cents < f.MinAmount.Cents {
		return false
	}
	if f.MaxAmount != nil && tx.Amount.Cents > f.MaxAmount.Cents {
		return false
	}
	return true
}

// FilterTransactions returns the transactions matching f in input order.
// An inverted date range matches nothing.
func FilterTransactions(txs []core.Transaction, f Filter) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// AggregateByCategory sums expense amounts per category, optionally limited
// to a date range. Income is excluded and categories without matching
// expenses are absent from the result.
func AggregateByCategory(txs []core.Transaction, within *DateRange) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, tx := range txs {
		if !tx.IsExpense() {
			continue
		}
		if within != nil && !within.Contains(tx.Date.Time) {
			continue
		}
		out[tx.Category] = out[tx.Category].Add(tx.Amount)
	}
	return out
}

// Totals sums spend and income, optionally limited to a date range.
func Totals(txs []core.Transaction, within *DateRange) (spend, income core.Money) {
	for _, tx := range txs {
		if within != nil && !within.Contains(tx.Date.Time) {
			continue
		}
		switch tx.Type {
		case core.Expense:
			spend = spend.Add(tx.Amount)
		case core.Income:
			income = income.Add(tx.Amount)
		}
	}
	return spend, income
}

// SortedCategoryAmounts flattens an aggregate, largest amount first and
// then by name.
func SortedCategoryAmounts(byCat map[string]core.Money) []core.CategoryAmount {
	list := make([]core.CategoryAmount, 0, len(byCat))
	for name, amt := range byCat {
		list = append(list, core.CategoryAmount{Name: name, Amount: amt})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Amount.Cents != list[j].Amount.Cents {
			return list[i].Amount.Cents > list[j].Amount.Cents
		}
		return list[i].Name < list[j].Name
	})
	return list
}
