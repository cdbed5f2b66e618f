package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"saldo/internal/core"
	"saldo/internal/pagination"
	"saldo/internal/services"
	"saldo/internal/state"
	"saldo/internal/views"
)

// OpenFunc opens a session for one command run. The returned func releases
// whatever the session holds.
type OpenFunc func(ctx context.Context) (*services.Session, func() error, error)

// App is the state every saldo subcommand shares.
type App struct {
	Open     OpenFunc
	Out      io.Writer
	Err      io.Writer
	Now      func() time.Time
	PageSize int
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) errOut() io.Writer {
	if a.Err == nil {
		return os.Stderr
	}
	return a.Err
}

func (a *App) now() time.Time {
	if a.Now == nil {
		return time.Now()
	}
	return a.Now()
}

func (a *App) pageSize() int {
	if a.PageSize < 1 {
		return 50
	}
	return a.PageSize
}

// run opens a session, hands it to fn and maps the outcome to an exit status.
func (a *App) run(ctx context.Context, fn func(*services.Session) error) subcommands.ExitStatus {
	session, closeFn, err := a.Open(ctx)
	if err != nil {
		fmt.Fprintln(a.errOut(), err)
		return subcommands.ExitFailure
	}
	defer func() {
		if closeFn != nil {
			if err := closeFn(); err != nil {
				fmt.Fprintln(a.errOut(), "close:", err)
			}
		}
	}()

	if err := fn(session); err != nil {
		fmt.Fprintln(a.errOut(), err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// warnDegraded notes on stderr when a collection is shown from a fallback.
func warnDegraded[T any](w io.Writer, kind core.Kind, st state.State[T]) {
	if st.IsError() {
		fmt.Fprintf(w, "warning: %s: %v\n", kind, st.Err)
	}
}

// Register the subcommands.
func Register(c *subcommands.Commander, app *App) {
	c.Register(&listCmd{app: app}, "records")
	c.Register(&addCmd{app: app}, "records")
	c.Register(&deleteCmd{app: app}, "records")
	c.Register(&summaryCmd{app: app}, "reports")
	c.Register(&refreshCmd{app: app}, "cache")
	c.Register(&cacheStatsCmd{app: app}, "cache")
	c.Register(&signOutCmd{app: app}, "cache")
}

func parseKind(s string) (core.Kind, error) {
	k := core.Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", fmt.Errorf("unknown kind %q: must be one of %v", s, core.Kinds())
	}
	return k, nil
}

type listCmd struct {
	app  *App
	kind string
	page int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list one page of records of a kind, newest first" }
func (*listCmd) Usage() string {
	return `saldo list [-kind transactions|budgets|categories|goals] [-page <n>]

  Loads the collection (from cache, remote or local snapshot) and prints
  the requested zero-based page.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", string(core.KindTransactions), "Record kind to list.")
	f.IntVar(&c.page, "page", 0, "Zero-based page number.")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	kind, err := parseKind(c.kind)
	if err != nil {
		fmt.Fprintln(c.app.errOut(), err)
		return subcommands.ExitUsageError
	}
	if c.page < 0 {
		fmt.Fprintln(c.app.errOut(), "page must not be negative")
		return subcommands.ExitUsageError
	}

	return c.app.run(ctx, func(s *services.Session) error {
		w := tabwriter.NewWriter(c.app.out(), 0, 4, 2, ' ', 0)
		defer w.Flush()

		size := c.app.pageSize()
		switch kind {
		case core.KindTransactions:
			return listPage(ctx, c.app, w, s.Transactions, c.page, size, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION", func(t core.Transaction) string {
				return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s", t.ID, t.Date, t.Type, t.Category, t.Amount, t.Description)
			})
		case core.KindBudgets:
			return listPage(ctx, c.app, w, s.Budgets, c.page, size, "ID\tCATEGORY\tAMOUNT\tFROM\tTO", func(b core.Budget) string {
				return fmt.Sprintf("%s\t%s\t%s\t%s\t%s", b.ID, b.Category, b.Amount, b.PeriodStart, b.PeriodEnd)
			})
		case core.KindCategories:
			return listPage(ctx, c.app, w, s.Categories, c.page, size, "ID\tTYPE\tNAME", func(cat core.Category) string {
				return fmt.Sprintf("%s\t%s\t%s", cat.ID, cat.Type, cat.Name)
			})
		default:
			return listPage(ctx, c.app, w, s.Goals, c.page, size, "ID\tNAME\tSAVED\tTARGET\tDEADLINE", func(g core.Goal) string {
				return fmt.Sprintf("%s\t%s\t%s\t%s\t%s", g.ID, g.Name, g.Saved, g.Target, g.Deadline)
			})
		}
	})
}

func listPage[T core.Record](
	ctx context.Context,
	app *App,
	w io.Writer,
	c *services.Coordinator[T],
	page, size int,
	header string,
	row func(T) string,
) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}
	warnDegraded(app.errOut(), c.Kind(), c.State())

	p := c.Page(page, size)
	total := len(c.Records())
	fmt.Fprintln(w, header)
	for _, r := range p.Items {
		fmt.Fprintln(w, row(r))
	}
	fmt.Fprintf(w, "page %d of %d (%d %s)\n", p.Index+1, max(pagination.PageCount(total, size), 1), total, c.Kind())
	return nil
}

type addCmd struct {
	app         *App
	date        string
	description string
	amount      string
	category    string
	txType      string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "record a new transaction" }
func (*addCmd) Usage() string {
	return `saldo add -amount <12.34> -category <name> -desc <text> [-date yyyy-mm-dd] [-type expense|income]
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "date", "", "Transaction date (defaults to today).")
	f.StringVar(&c.description, "desc", "", "Description.")
	f.StringVar(&c.amount, "amount", "", "Positive amount, '.' or ',' as decimal separator.")
	f.StringVar(&c.category, "category", "", "Category name.")
	f.StringVar(&c.txType, "type", string(core.Expense), "expense or income.")
}

func (c *addCmd) transaction(ownerID string) (core.Transaction, error) {
	date := core.DateOf(c.app.now())
	if c.date != "" {
		d, err := core.ParseDate(c.date)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("date %q: %w", c.date, err)
		}
		date = d
	}
	cents, err := core.ParseDecimalToCents(c.amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("amount %q: %w", c.amount, err)
	}
	tx := core.Transaction{
		OwnerID:     ownerID,
		Date:        date,
		Description: strings.TrimSpace(c.description),
		Amount:      core.Money{Cents: cents},
		Category:    strings.TrimSpace(c.category),
		Type:        core.TransactionType(strings.ToLower(c.txType)),
	}
	return tx, tx.Validate()
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *services.Session) error {
		tx, err := c.transaction(s.OwnerID())
		if err != nil {
			return err
		}
		if err := s.Transactions.Refresh(ctx); err != nil {
			return err
		}
		stored, err := s.Transactions.Add(ctx, tx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "added %s %s %s on %s\n", stored.ID, stored.Type, stored.Amount, stored.Date)
		return nil
	})
}

type deleteCmd struct {
	app  *App
	kind string
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete records by id" }
func (*deleteCmd) Usage() string {
	return `saldo delete [-kind transactions|budgets|categories|goals] <id>...
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", string(core.KindTransactions), "Record kind to delete from.")
}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	kind, err := parseKind(c.kind)
	if err != nil {
		fmt.Fprintln(c.app.errOut(), err)
		return subcommands.ExitUsageError
	}
	if f.NArg() == 0 {
		fmt.Fprintln(c.app.errOut(), "at least one id is required")
		return subcommands.ExitUsageError
	}

	return c.app.run(ctx, func(s *services.Session) error {
		var refresh func(context.Context) error
		var del func(context.Context, string) error
		switch kind {
		case core.KindTransactions:
			refresh, del = s.Transactions.Refresh, s.Transactions.Delete
		case core.KindBudgets:
			refresh, del = s.Budgets.Refresh, s.Budgets.Delete
		case core.KindCategories:
			refresh, del = s.Categories.Refresh, s.Categories.Delete
		default:
			refresh, del = s.Goals.Refresh, s.Goals.Delete
		}

		if err := refresh(ctx); err != nil {
			return err
		}
		var errs []error
		for _, id := range f.Args() {
			if err := del(ctx, id); err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Fprintf(c.app.out(), "deleted %s %s\n", kind, id)
		}
		return errors.Join(errs...)
	})
}

type summaryCmd struct {
	app *App
	top int
}

func (*summaryCmd) Name() string { return "summary" }
func (*summaryCmd) Synopsis() string {
	return "current month totals, budget progress and goal progress"
}
func (*summaryCmd) Usage() string {
	return `saldo summary [-top <n>]
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.top, "top", 5, "Number of categories and recent transactions to show.")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *services.Session) error {
		if err := s.RefreshAll(ctx); err != nil {
			fmt.Fprintln(c.app.errOut(), "warning:", err)
		}
		now := c.app.now()
		w := tabwriter.NewWriter(c.app.out(), 0, 4, 2, ' ', 0)
		defer w.Flush()

		txs := s.Transactions.State()
		warnDegraded(c.app.errOut(), core.KindTransactions, txs)
		ov := views.NewOverview(txs.Records, now, c.top)
		clock := func() time.Time { return now }
		fmt.Fprintf(w, "Period\t%s .. %s\n", core.DateOf(ov.Period.From), core.DateOf(ov.Period.To))
		fmt.Fprintf(w, "Income\t%s\n", ov.Totals.Income)
		fmt.Fprintf(w, "Spend\t%s\n", ov.Totals.Spend)
		fmt.Fprintf(w, "Net\t%s\n", ov.Totals.Net())
		for _, ca := range ov.TopCategories {
			fmt.Fprintf(w, "  %s\t%s\n", ca.Name, ca.Amount)
		}

		progress := views.BudgetProgressView(s.Budgets.Holder(), s.Transactions.Holder(), clock).Value()
		// Progress only exists once both collections are in Data.
		if progress.IsData() {
			fmt.Fprintln(w, "\nBudgets")
			for _, p := range progress.Records {
				mark := ""
				if p.Over() {
					mark = "over"
				}
				fmt.Fprintf(w, "  %s\t%s / %s\t%s\t%s\n", p.Budget.Category, p.Spent, p.Budget.Amount, percent(p.Ratio), mark)
			}
		} else {
			fmt.Fprintln(w, "\nBudgets\tunavailable")
		}

		goalState := views.GoalStatsView(s.Goals.Holder()).Value()
		if len(goalState.Records) == 0 {
			fmt.Fprintln(w, "\nGoals\tunavailable")
			return nil
		}
		goals := goalState.Records[0]
		fmt.Fprintf(w, "\nGoals\t%s / %s\t%s\t%d reached\n", goals.Saved, goals.Target, percent(goals.Completion), goals.Reached)
		for _, g := range goals.Goals {
			fmt.Fprintf(w, "  %s\t%s / %s\t%s\n", g.Goal.Name, g.Goal.Saved, g.Goal.Target, percent(g.Ratio))
		}
		return nil
	})
}

func percent(r float64) string {
	if math.IsInf(r, 1) {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", r*100)
}

type refreshCmd struct {
	app *App
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "reload every collection and report where it came from" }
func (*refreshCmd) Usage() string {
	return `saldo refresh
`
}

func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (c *refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *services.Session) error {
		err := s.RefreshAll(ctx)
		w := tabwriter.NewWriter(c.app.out(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tSTATUS\tRECORDS")
		row := func(kind core.Kind, status state.Status, n int) {
			fmt.Fprintf(w, "%s\t%s\t%d\n", kind, status, n)
		}
		row(core.KindTransactions, s.Transactions.State().Status, len(s.Transactions.Records()))
		row(core.KindBudgets, s.Budgets.State().Status, len(s.Budgets.Records()))
		row(core.KindCategories, s.Categories.State().Status, len(s.Categories.Records()))
		row(core.KindGoals, s.Goals.State().Status, len(s.Goals.Records()))
		w.Flush()
		return err
	})
}

type cacheStatsCmd struct {
	app *App
}

func (*cacheStatsCmd) Name() string     { return "cache-stats" }
func (*cacheStatsCmd) Synopsis() string { return "load every collection and print cache occupancy" }
func (*cacheStatsCmd) Usage() string {
	return `saldo cache-stats
`
}

func (*cacheStatsCmd) SetFlags(*flag.FlagSet) {}

func (c *cacheStatsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *services.Session) error {
		if err := s.RefreshAll(ctx); err != nil {
			fmt.Fprintln(c.app.errOut(), "warning:", err)
		}
		evicted := s.Sweep()
		stats := s.CacheStats()
		w := tabwriter.NewWriter(c.app.out(), 0, 4, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintf(w, "evicted %d expired entries\n", evicted)
		fmt.Fprintln(w, "KIND\tSIZE\tCAPACITY")
		for _, kind := range core.Kinds() {
			st := stats[kind]
			fmt.Fprintf(w, "%s\t%d\t%d\n", kind, st.Size, st.Capacity)
		}
		return nil
	})
}

type signOutCmd struct {
	app   *App
	purge bool
}

func (*signOutCmd) Name() string     { return "signout" }
func (*signOutCmd) Synopsis() string { return "clear cached data, optionally deleting local snapshots" }
func (*signOutCmd) Usage() string {
	return `saldo signout [-purge]
`
}

func (c *signOutCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.purge, "purge", false, "Also delete the owner's local snapshots.")
}

func (c *signOutCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.run(ctx, func(s *services.Session) error {
		if !c.purge {
			s.SignOut(ctx)
			fmt.Fprintf(c.app.out(), "signed out %s\n", s.OwnerID())
			return nil
		}
		n, err := s.Forget(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.app.out(), "signed out %s, removed %d local snapshots\n", s.OwnerID(), n)
		return nil
	})
}
