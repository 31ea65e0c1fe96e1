package cli

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"ledger/internal/core"
	"ledger/internal/currency"
	"ledger/internal/ledger"
)

// mutationCmd is both "deposit" and "withdraw".
type mutationCmd struct {
	*env
	kind     core.Kind
	category string
	note     string
	key      string
}

func (c *mutationCmd) Name() string { return string(c.kind) }
func (c *mutationCmd) Synopsis() string {
	if c.kind == core.Deposit {
		return "add money to an account"
	}
	return "take money from an account"
}
func (c *mutationCmd) Usage() string {
	return fmt.Sprintf(`ledgerctl %s [-category <name|id>] [-note <text>] [-key <idempotency key>] <account> <amount>

  <account> is an account id or name. Amounts accept "." or "," as decimal separator.
`, c.kind)
}

func (c *mutationCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.category, "category", "", "Category name or id of the same kind.")
	f.StringVar(&c.note, "note", "", "Free text note.")
	f.StringVar(&c.key, "key", "", "Idempotency key; repeating it returns the first result.")
}

func (c *mutationCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return c.usage("Error: expected <account> <amount>.")
	}
	amount, err := core.ParseAmount(f.Arg(1))
	if err != nil {
		return c.fail(fmt.Errorf("%w: %q", err, f.Arg(1)))
	}
	return c.run(ctx, func(ctx context.Context, app *App) error {
		acc, err := resolveAccount(ctx, app.Backend.Store, f.Arg(0))
		if err != nil {
			return err
		}
		categoryID, err := resolveCategory(ctx, app, c.category, c.kind)
		if err != nil {
			return err
		}
		tx, err := app.Ledger.MutateBalance(ctx, ledger.MutationInput{
			AccountID:      acc.ID,
			Kind:           c.kind,
			Amount:         amount,
			CategoryID:     categoryID,
			Note:           c.note,
			IdempotencyKey: c.key,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s %s %s on %s (%s)\n", green("Recorded"), tx.Kind, currency.Format(tx.Amount, tx.Currency), tx.AccountName, tx.ID)
		return nil
	})
}

type transferCmd struct {
	*env
	note string
	key  string
}

func (*transferCmd) Name() string     { return "transfer" }
func (*transferCmd) Synopsis() string { return "move money between two accounts" }
func (*transferCmd) Usage() string {
	return `ledgerctl transfer [-note <text>] [-key <idempotency key>] <from> <to> <amount>

  Moves the same numeric amount between accounts. Accounts in different
  currencies are not converted; a warning is printed.
`
}

func (c *transferCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.note, "note", "", "Free text note added to both legs.")
	f.StringVar(&c.key, "key", "", "Idempotency key; repeating it returns the first result.")
}

func (c *transferCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 3 {
		return c.usage("Error: expected <from> <to> <amount>.")
	}
	amount, err := core.ParseAmount(f.Arg(2))
	if err != nil {
		return c.fail(fmt.Errorf("%w: %q", err, f.Arg(2)))
	}
	return c.run(ctx, func(ctx context.Context, app *App) error {
		from, err := resolveAccount(ctx, app.Backend.Store, f.Arg(0))
		if err != nil {
			return err
		}
		to, err := resolveAccount(ctx, app.Backend.Store, f.Arg(1))
		if err != nil {
			return err
		}
		res, err := app.Ledger.Transfer(ctx, ledger.TransferInput{
			FromID:         from.ID,
			ToID:           to.ID,
			Amount:         amount,
			Note:           c.note,
			IdempotencyKey: c.key,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%s %s from %s to %s (transfer %s)\n", green("Transferred"),
			amount, res.Withdraw.AccountName, res.Deposit.AccountName, res.Withdraw.TransferID)
		if res.CurrencyMismatch {
			fmt.Fprintln(c.out, yellow(fmt.Sprintf("Warning: %s and %s differ, the amount was not converted", res.Withdraw.Currency, res.Deposit.Currency)))
		}
		return nil
	})
}

type txCmd struct {
	*env
	period      string
	month       string
	account     string
	noTransfers bool
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list transactions of a period" }
func (*txCmd) Usage() string {
	return `ledgerctl tx [-p month|year|all] [-m YYYY-MM] [-a <account>] [-no-transfers]

  Lists transactions newest first.
`
}

func (c *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "p", "month", "Period: month, year or all.")
	f.StringVar(&c.month, "m", "", "Month anchoring the period, YYYY-MM. Defaults to the current month.")
	f.StringVar(&c.account, "a", "", "Only this account (id or name).")
	f.BoolVar(&c.noTransfers, "no-transfers", false, "Hide the legs of transfers between accounts.")
}

func (c *txCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, anchor, err := parsePeriod(c.period, c.month, time.Now())
	if err != nil {
		return c.fail(err)
	}
	return c.run(ctx, func(ctx context.Context, app *App) error {
		accountID := ""
		if c.account != "" {
			acc, err := resolveAccount(ctx, app.Backend.Store, c.account)
			if err != nil {
				return err
			}
			accountID = acc.ID
		}
		txs, err := app.Reports.Transactions(ctx, period, anchor)
		if err != nil {
			return err
		}

		w := c.table()
		fmt.Fprintln(w, bold("DATE\tACCOUNT\tKIND\tAMOUNT\tCATEGORY\tNOTE"))
		n := 0
		for _, t := range txs {
			if accountID != "" && t.AccountID != accountID {
				continue
			}
			if c.noTransfers && t.IsTransferLeg() {
				continue
			}
			amount := currency.Format(t.Amount, t.Currency)
			if t.Kind == core.Withdraw {
				amount = red("-" + amount)
			} else {
				amount = green("+" + amount)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.CreatedAt.Local().Format("2006-01-02 15:04"), t.AccountName, t.Kind, amount, t.CategoryName, t.Note)
			n++
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%d transaction(s)\n", n)
		return nil
	})
}

// parsePeriod reads the -p/-m flag pair.
func parsePeriod(p, month string, now time.Time) (core.Period, time.Time, error) {
	period, err := core.ParsePeriod(p)
	if err != nil {
		return "", time.Time{}, err
	}
	if month == "" {
		return period, now, nil
	}
	anchor, err := time.ParseInLocation("2006-01", month, now.Location())
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: month must look like YYYY-MM, got %q", core.ErrInvalidInput, month)
	}
	return period, anchor, nil
}
