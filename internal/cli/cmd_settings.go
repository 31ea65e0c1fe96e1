package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/currency"
)

type categoriesCmd struct {
	*env
	add  string
	kind string
}

func (*categoriesCmd) Name() string     { return "categories" }
func (*categoriesCmd) Synopsis() string { return "list or add transaction categories" }
func (*categoriesCmd) Usage() string {
	return `ledgerctl categories [-k deposit|withdraw] [-add <name>]
`
}

func (c *categoriesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.add, "add", "", "Name of a category to create; -k selects its kind (default withdraw).")
	f.StringVar(&c.kind, "k", "", "Restrict to one kind.")
}

func (c *categoriesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, func(ctx context.Context, app *App) error {
		if c.add != "" {
			kind := core.Kind(strings.ToLower(c.kind))
			if kind == "" {
				kind = core.Withdraw
			}
			cat, err := app.Categories.CreateCategory(ctx, c.add, kind)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s %s category %s (%s)\n", green("Created"), cat.Kind, cat.Name, cat.ID)
			return nil
		}

		cats, err := app.Categories.ListCategories(ctx, core.Kind(strings.ToLower(c.kind)))
		if err != nil {
			return err
		}
		w := c.table()
		fmt.Fprintln(w, bold("ID\tKIND\tNAME"))
		for _, cat := range cats {
			fmt.Fprintf(w, "%s\t%s\t%s\n", cat.ID, cat.Kind, cat.Name)
		}
		return w.Flush()
	})
}

type ratesCmd struct {
	*env
	base string
	set  string
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "show or set the base currency and exchange rates" }
func (*ratesCmd) Usage() string {
	return `ledgerctl rates [-base <code>] [-set CODE=rate,CODE=rate]

  Rates are relative to a common pivot: amount_in_pivot = amount * rate.
  -set replaces the named rates and keeps the others.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.base, "base", "", "New base (reporting) currency.")
	f.StringVar(&c.set, "set", "", "Comma separated CODE=rate pairs.")
}

func (c *ratesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	updates, err := parseRatePairs(c.set)
	if err != nil {
		return c.fail(err)
	}
	return c.run(ctx, func(ctx context.Context, app *App) error {
		s, err := app.Settings.CurrencySettings(ctx)
		if err != nil {
			return err
		}
		if c.base != "" || len(updates) > 0 {
			if c.base != "" {
				s.Base = core.Currency(strings.ToUpper(c.base))
			}
			for code, rate := range updates {
				s.Rates[code] = rate
			}
			if err := app.Settings.Save(ctx, s); err != nil {
				return err
			}
			fmt.Fprintln(c.out, green("Saved"))
		}

		codes := make([]string, 0, len(s.Rates))
		for code := range s.Rates {
			codes = append(codes, string(code))
		}
		sort.Strings(codes)

		fmt.Fprintf(c.out, "Base: %s\n", bold(s.Base))
		w := c.table()
		fmt.Fprintln(w, bold("CODE\tRATE\tPER 1 "+string(s.Base)))
		for _, code := range codes {
			per := "-"
			if r, ok := currency.RateOf(core.Currency(code), s); ok {
				per = r.Round(6).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", code, s.Rates[core.Currency(code)], per)
		}
		return w.Flush()
	})
}

func parseRatePairs(s string) (map[core.Currency]decimal.Decimal, error) {
	out := map[core.Currency]decimal.Decimal{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: rate %q must look like CODE=rate", core.ErrInvalidInput, pair)
		}
		rate, err := core.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: rate for %s must be a positive decimal", core.ErrInvalidInput, code)
		}
		out[core.Currency(strings.ToUpper(strings.TrimSpace(code)))] = rate
	}
	return out, nil
}
