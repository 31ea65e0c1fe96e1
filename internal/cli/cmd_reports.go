package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/currency"
	"ledger/internal/services"
)

type reportCmd struct {
	*env
	period string
	month  string
	kind   string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "income, expense and category breakdown of a period" }
func (*reportCmd) Usage() string {
	return `ledgerctl report [-p month|year|all] [-m YYYY-MM] [-k withdraw|deposit]

  Prints the period summary in the base currency and the category breakdown.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "p", "month", "Period: month, year or all.")
	f.StringVar(&c.month, "m", "", "Month anchoring the period, YYYY-MM.")
	f.StringVar(&c.kind, "k", string(core.Withdraw), "Kind broken down by category.")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, anchor, err := parsePeriod(c.period, c.month, time.Now())
	if err != nil {
		return c.fail(err)
	}
	return c.run(ctx, func(ctx context.Context, app *App) error {
		sum, err := app.Reports.Summary(ctx, period, anchor)
		if err != nil {
			return err
		}
		cats, err := app.Reports.Categories(ctx, period, anchor, core.Kind(c.kind))
		if err != nil {
			return err
		}

		base := sum.Base
		net := currency.Format(sum.Summary.Net, base)
		if sum.Summary.Net.IsNegative() {
			net = red(net)
		} else {
			net = green(net)
		}
		fmt.Fprintf(c.out, "%s (%s)\n", bold("Summary"), describePeriod(sum))
		fmt.Fprintf(c.out, "  Income:  %s\n", currency.Format(sum.Summary.Income, base))
		fmt.Fprintf(c.out, "  Expense: %s\n", currency.Format(sum.Summary.Expense, base))
		fmt.Fprintf(c.out, "  Net:     %s\n", net)
		fmt.Fprintf(c.out, "  Transactions: %d\n\n", sum.Summary.Count)

		fmt.Fprintf(c.out, "%s by category\n", bold(cats.Kind))
		w := c.table()
		for _, cat := range cats.Categories {
			fmt.Fprintf(w, "  %s\t%s\t%s%%\n", cat.Name, currency.Format(cat.Total, base), cat.Share.Mul(decimal.NewFromInt(100)).StringFixed(1))
		}
		return w.Flush()
	})
}

func describePeriod(s services.SummaryReport) string {
	switch s.Period {
	case core.PeriodMonth:
		return s.Start.Format("January 2006")
	case core.PeriodYear:
		return s.Start.Format("2006")
	default:
		return "all time"
	}
}

type budgetsCmd struct {
	*env
	add      string
	limit    string
	period   string
	category string
}

func (*budgetsCmd) Name() string     { return "budgets" }
func (*budgetsCmd) Synopsis() string { return "show budget status or add a budget" }
func (*budgetsCmd) Usage() string {
	return `ledgerctl budgets [-add <name> -limit <amount> [-period monthly|yearly] [-category <name|id>]]

  Without -add, evaluates every budget for its current period. Over budget
  lines are shown in red and make the command exit with a failure status.
`
}

func (c *budgetsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.add, "add", "", "Name of a budget to create.")
	f.StringVar(&c.limit, "limit", "", "Spending limit of the new budget.")
	f.StringVar(&c.period, "period", string(core.Monthly), "Period of the new budget.")
	f.StringVar(&c.category, "category", "", "Withdraw category of the new budget; empty counts every withdraw.")
}

func (c *budgetsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.add != "" {
		return c.create(ctx)
	}

	over := false
	status := c.run(ctx, func(ctx context.Context, app *App) error {
		statuses, err := app.Budgets.Statuses(ctx)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Fprintln(c.out, "No budgets defined.")
			return nil
		}
		w := c.table()
		fmt.Fprintln(w, bold("BUDGET\tPERIOD\tSPENT\tLIMIT\tREMAINING\tPROGRESS"))
		for _, s := range statuses {
			line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s%%",
				s.Budget.Name, s.Budget.Period, s.Spent, s.Budget.Limit, s.Remaining,
				s.Progress.Mul(decimal.NewFromInt(100)).StringFixed(0))
			if s.OverBudget {
				over = true
				line = red(line)
			}
			fmt.Fprintln(w, line)
		}
		return w.Flush()
	})
	if status == subcommands.ExitSuccess && over {
		return subcommands.ExitFailure
	}
	return status
}

func (c *budgetsCmd) create(ctx context.Context) subcommands.ExitStatus {
	if c.limit == "" {
		return c.usage("Error: -limit is required with -add.")
	}
	limit, err := core.ParseBalance(c.limit)
	if err != nil {
		return c.fail(err)
	}
	return c.run(ctx, func(ctx context.Context, app *App) error {
		categoryID, err := resolveCategory(ctx, app, c.category, core.Withdraw)
		if err != nil {
			return err
		}
		b, err := app.Budgets.CreateBudget(ctx, services.CreateBudgetInput{
			Name:       c.add,
			Limit:      limit,
			Period:     core.BudgetPeriod(c.period),
			CategoryID: categoryID,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s budget %s (%s) limit %s %s\n", green("Created"), b.Name, b.ID, b.Limit, b.Period)
		return nil
	})
}
