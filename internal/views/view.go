package views

import (
	"context"
	"time"

	"saldo/internal/core"
	"saldo/internal/state"
)

// Trigger starts a stream of change signals that ends when ctx is done.
type Trigger func(ctx context.Context) <-chan struct{}

// On signals on every state a holder publishes, starting with the current
// one.
func On[T any](h *state.Holder[T]) Trigger {
	return func(ctx context.Context) <-chan struct{} {
		states, cancel := h.Subscribe()
		out := make(chan struct{}, 1)
		go func() {
			defer cancel()
			defer close(out)
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-states:
					if !ok {
						return
					}
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
		}()
		return out
	}
}

// View is a projection re-evaluated whenever one of its upstream holders
// publishes.
type View[V any] struct {
	eval     func() V
	triggers []Trigger
}

func New[V any](eval func() V, triggers ...Trigger) *View[V] {
	return &View[V]{eval: eval, triggers: triggers}
}

// Value evaluates the projection against the current upstream state.
func (v *View[V]) Value() V {
	return v.eval()
}

// Watch emits a fresh value after every upstream change until ctx is done,
// then closes the channel. A slow reader only sees the newest value.
func (v *View[V]) Watch(ctx context.Context) <-chan V {
	out := make(chan V, 1)
	signal := make(chan struct{}, 1)

	for _, trigger := range v.triggers {
		changes := trigger(ctx)
		go func() {
			for range changes {
				select {
				case signal <- struct{}{}:
				default:
				}
			}
		}()
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				replace(out, v.eval())
			}
		}
	}()
	return out
}

// replace puts value in a depth-1 channel, dropping a pending older one.
// Only the owning goroutine sends on ch.
func replace[V any](ch chan V, value V) {
	for {
		select {
		case ch <- value:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// RecentView tracks the n most recent records of a holder.
func RecentView[T any](h *state.Holder[T], n int) *View[[]T] {
	return New(func() []T { return Recent(h.Current(), n) }, On(h))
}

// TotalsView tracks the current month's totals. It follows the transaction
// state: Loading until the first data, Error with totals over the last good
// records after a failure.
func TotalsView(txs *state.Holder[core.Transaction], now func() time.Time) *View[state.State[Totals]] {
	return New(func() state.State[Totals] {
		return project(txs.Current(), func(records []core.Transaction) Totals {
			return PeriodTotals(records, now())
		})
	}, On(txs))
}

// BudgetProgressView tracks BudgetProgress over two holders.
func BudgetProgressView(budgets *state.Holder[core.Budget], txs *state.Holder[core.Transaction], now func() time.Time) *View[state.State[Progress]] {
	return New(func() state.State[Progress] {
		return BudgetProgress(budgets.Current(), txs.Current(), now())
	}, On(budgets), On(txs))
}

func GoalStatsView(goals *state.Holder[core.Goal]) *View[state.State[GoalSummary]] {
	return New(func() state.State[GoalSummary] {
		return project(goals.Current(), GoalStats)
	}, On(goals))
}

// project maps a state's records through f into a single-value state with
// the same status.
func project[T, V any](st state.State[T], f func([]T) V) state.State[V] {
	switch {
	case st.IsLoading():
		return state.NewLoading[V]()
	case st.IsError() && st.Records == nil:
		return state.NewError[V](st.Err, nil)
	case st.IsError():
		return state.NewError(st.Err, []V{f(st.Records)})
	}
	return state.NewData([]V{f(st.Records)})
}
