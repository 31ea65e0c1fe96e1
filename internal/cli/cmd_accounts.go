package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"ledger/internal/core"
	"ledger/internal/currency"
	"ledger/internal/ledger"
)

type accountsCmd struct {
	*env
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list accounts with their balances" }
func (*accountsCmd) Usage() string {
	return `ledgerctl accounts

  Lists every account in creation order, then the total in the base currency.
`
}

func (*accountsCmd) SetFlags(*flag.FlagSet) {}

func (c *accountsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, func(ctx context.Context, app *App) error {
		accounts, err := app.Backend.Store.ListAccounts(ctx)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		if len(accounts) == 0 {
			fmt.Fprintln(c.out, "No accounts yet. Create one with: ledgerctl open -name <name>")
			return nil
		}

		w := c.table()
		fmt.Fprintln(w, bold("ID\tNAME\tTYPE\tBALANCE"))
		for _, a := range accounts {
			balance := currency.Format(a.Balance, a.Currency)
			if a.Balance.IsNegative() {
				balance = red(balance)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Type, balance)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		report, err := app.Reports.Balances(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "\nTotal: %s\n", bold(currency.Format(report.Total, report.Base)))
		for _, code := range report.Unconvertible {
			fmt.Fprintln(c.out, yellow(fmt.Sprintf("Warning: no rate for %s, counted unconverted", code)))
		}
		return nil
	})
}

type openCmd struct {
	*env
	name     string
	typ      string
	currency string
	initial  string
}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "create an account" }
func (*openCmd) Usage() string {
	return `ledgerctl open -name <name> [-type checking|savings|credit|cash] [-currency TRY] [-initial <amount>]

  Creates an account. The initial balance becomes its opening balance.
`
}

func (c *openCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "Account name (at least 2 characters).")
	f.StringVar(&c.typ, "type", string(core.Checking), "Account type.")
	f.StringVar(&c.currency, "currency", string(core.TRY), "ISO 4217 currency code.")
	f.StringVar(&c.initial, "initial", "", "Opening balance, e.g. 1500.50.")
}

func (c *openCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		return c.usage("Error: -name is required.")
	}
	initial, err := core.ParseBalance(c.initial)
	if err != nil {
		return c.fail(err)
	}
	return c.run(ctx, func(ctx context.Context, app *App) error {
		acc, err := app.Ledger.CreateAccount(ctx, ledger.CreateAccountInput{
			Name:           c.name,
			Type:           core.AccountType(strings.ToLower(c.typ)),
			Currency:       core.Currency(c.currency),
			InitialBalance: initial,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s %s (%s) %s\n", green("Created"), acc.Name, acc.ID, currency.Format(acc.Balance, acc.Currency))
		return nil
	})
}
