// Package views derives read-only projections from coordinator state:
// recent records, current-month totals, budget progress and goal stats.
// Every projection is recomputed from the supplied clock on evaluation,
// so nothing is cached across month boundaries.
package views

import (
	"math"
	"time"

	"saldo/internal/core"
	"saldo/internal/query"
	"saldo/internal/state"
)

// Period is the calendar month containing now, as an inclusive range over
// transaction dates.
func Period(now time.Time) query.DateRange {
	start, end := query.MonthOf(core.DateOf(now).Time)
	return query.DateRange{From: start, To: end.Add(-time.Nanosecond)}
}

// Recent returns the first n records of st. Collections are kept newest
// first, so these are the n most recent. Loading yields nothing; Error
// yields from the last good records.
func Recent[T any](st state.State[T], n int) []T {
	if n <= 0 || len(st.Records) == 0 {
		return []T{}
	}
	if n > len(st.Records) {
		n = len(st.Records)
	}
	return append([]T(nil), st.Records[:n]...)
}

// CurrentPeriod returns the transactions dated in the month containing now.
func CurrentPeriod(txs []core.Transaction, now time.Time) []core.Transaction {
	p := Period(now)
	return query.FilterTransactions(txs, query.Filter{From: &p.From, To: &p.To})
}

type Totals struct {
	Spend      core.Money
	Income     core.Money
	ByCategory []core.CategoryAmount
}

// Net is income minus spend.
func (t Totals) Net() core.Money {
	return t.Income.Sub(t.Spend)
}

// PeriodTotals sums the current month's transactions.
func PeriodTotals(txs []core.Transaction, now time.Time) Totals {
	p := Period(now)
	spend, income := query.Totals(txs, &p)
	return Totals{
		Spend:      spend,
		Income:     income,
		ByCategory: query.SortedCategoryAmounts(query.AggregateByCategory(txs, &p)),
	}
}

// Progress is one budget's consumption in the current month.
type Progress struct {
	Budget core.Budget
	Spent  core.Money
	// Ratio is Spent / Budget.Amount, never negative. A zero budget gives 0
	// when nothing was spent and +Inf otherwise.
	Ratio float64
}

func (p Progress) Over() bool {
	return p.Spent.Cents > p.Budget.Amount.Cents
}

func (p Progress) Remaining() core.Money {
	return p.Budget.Amount.Sub(p.Spent)
}

// BudgetProgress combines the budget and transaction states. The result is
// Loading until both inputs hold Data, including while either is in Error,
// and otherwise carries one Progress per budget active this month.
func BudgetProgress(budgets state.State[core.Budget], txs state.State[core.Transaction], now time.Time) state.State[Progress] {
	if !budgets.IsData() || !txs.IsData() {
		return state.NewLoading[Progress]()
	}
	return state.NewData(computeProgress(budgets.Records, txs.Records, now))
}

func computeProgress(budgets []core.Budget, txs []core.Transaction, now time.Time) []Progress {
	month := Period(now)
	out := make([]Progress, 0, len(budgets))
	for _, b := range budgets {
		window, ok := overlap(month, b)
		if !ok {
			continue
		}
		spent := query.AggregateByCategory(txs, &window)[b.Category]
		out = append(out, Progress{Budget: b, Spent: spent, Ratio: ratio(spent, b.Amount)})
	}
	return out
}

// overlap intersects the month with the budget's period. Budgets with no
// end date run indefinitely.
func overlap(month query.DateRange, b core.Budget) (query.DateRange, bool) {
	w := month
	if b.PeriodStart.After(w.From) {
		w.From = b.PeriodStart.Time
	}
	if !b.PeriodEnd.IsZero() {
		end := b.PeriodEnd.Add(24*time.Hour - time.Nanosecond)
		if end.Before(w.To) {
			w.To = end
		}
	}
	return w, !w.To.Before(w.From)
}

func ratio(part, whole core.Money) float64 {
	if part.Cents <= 0 {
		return 0
	}
	if whole.Cents <= 0 {
		return math.Inf(1)
	}
	return float64(part.Cents) / float64(whole.Cents)
}

type GoalProgress struct {
	Goal      core.Goal
	Ratio     float64
	Remaining core.Money
}

type GoalSummary struct {
	Goals   []GoalProgress
	Saved   core.Money
	Target  core.Money
	Reached int
	// Completion is total saved over total target, capped at 1.
	Completion float64
}

// GoalStats reports progress towards each goal and overall.
func GoalStats(goals []core.Goal) GoalSummary {
	s := GoalSummary{Goals: make([]GoalProgress, 0, len(goals))}
	for _, g := range goals {
		remaining := g.Target.Sub(g.Saved)
		if remaining.Cents < 0 {
			remaining = core.Money{}
		}
		s.Goals = append(s.Goals, GoalProgress{
			Goal:      g,
			Ratio:     math.Min(ratio(g.Saved, g.Target), 1),
			Remaining: remaining,
		})
		s.Saved = s.Saved.Add(g.Saved)
		s.Target = s.Target.Add(g.Target)
		if g.Reached() {
			s.Reached++
		}
	}
	s.Completion = math.Min(ratio(s.Saved, s.Target), 1)
	return s
}

// Overview is the dashboard summary for the current month.
type Overview struct {
	Period        query.DateRange
	Totals        Totals
	TopCategories []core.CategoryAmount
	Recent        []core.Transaction
}

// NewOverview builds the overview with at most top categories and top
// recent transactions.
func NewOverview(txs []core.Transaction, now time.Time, top int) Overview {
	totals := PeriodTotals(txs, now)
	cats := totals.ByCategory
	if top >= 0 && len(cats) > top {
		cats = cats[:top]
	}
	return Overview{
		Period:        Period(now),
		Totals:        totals,
		TopCategories: cats,
		Recent:        Recent(state.NewData(txs), top),
	}
}
