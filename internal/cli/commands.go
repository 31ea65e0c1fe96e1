package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/subcommands"

	"ledger/internal/core"
	"ledger/internal/store"
)

// Opener returns a ready App and the function releasing it.
type Opener func(ctx context.Context) (*App, func() error, error)

// OpenApp opens a fresh App from cfg for every command.
func OpenApp(newApp func(ctx context.Context) (*App, error)) Opener {
	return func(ctx context.Context) (*App, func() error, error) {
		app, err := newApp(ctx)
		if err != nil {
			return nil, nil, err
		}
		return app, app.Close, nil
	}
}

var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// env is what every ledgerctl command shares.
type env struct {
	open   Opener
	out    io.Writer
	errOut io.Writer
}

// Register adds the ledgerctl commands to c.
func Register(c *subcommands.Commander, open Opener, out, errOut io.Writer) {
	e := &env{open: open, out: out, errOut: errOut}

	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")

	c.Register(&accountsCmd{env: e}, "accounts")
	c.Register(&openCmd{env: e}, "accounts")

	c.Register(&mutationCmd{env: e, kind: core.Deposit}, "transactions")
	c.Register(&mutationCmd{env: e, kind: core.Withdraw}, "transactions")
	c.Register(&transferCmd{env: e}, "transactions")
	c.Register(&txCmd{env: e}, "transactions")

	c.Register(&reportCmd{env: e}, "reports")
	c.Register(&budgetsCmd{env: e}, "reports")

	c.Register(&categoriesCmd{env: e}, "settings")
	c.Register(&ratesCmd{env: e}, "settings")
}

// run opens the app, runs fn and maps its error to an exit status.
func (e *env) run(ctx context.Context, fn func(ctx context.Context, app *App) error) subcommands.ExitStatus {
	app, closeApp, err := e.open(ctx)
	if err != nil {
		return e.fail(fmt.Errorf("open ledger: %w", err))
	}
	defer func() {
		if err := closeApp(); err != nil {
			fmt.Fprintln(e.errOut, red("Warning:"), err)
		}
	}()
	if err := fn(ctx, app); err != nil {
		return e.fail(err)
	}
	return subcommands.ExitSuccess
}

func (e *env) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(e.errOut, red("Error:"), err)
	return exitStatus(err)
}

func (e *env) usage(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(e.errOut, format+"\n", args...)
	return subcommands.ExitUsageError
}

func (e *env) table() *tabwriter.Writer {
	return tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
}

// exitStatus treats rejected input as a usage error and everything else as
// a failure.
func exitStatus(err error) subcommands.ExitStatus {
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrSameAccountTransfer):
		return subcommands.ExitUsageError
	default:
		return subcommands.ExitFailure
	}
}

// resolveAccount accepts an account id or a case-insensitive account name.
func resolveAccount(ctx context.Context, r store.Reader, ref string) (core.Account, error) {
	accounts, err := r.ListAccounts(ctx)
	if err != nil {
		return core.Account{}, fmt.Errorf("list accounts: %w", err)
	}
	var matches []core.Account
	for _, a := range accounts {
		if a.ID == ref {
			return a, nil
		}
		if strings.EqualFold(a.Name, strings.TrimSpace(ref)) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return core.Account{}, fmt.Errorf("%w: %q", core.ErrUnknownAccount, ref)
	case 1:
		return matches[0], nil
	default:
		return core.Account{}, fmt.Errorf("%w: %d accounts are named %q, use the id", core.ErrInvalidInput, len(matches), ref)
	}
}

// resolveCategory accepts a category id or name of the given kind. An empty
// ref means no category.
func resolveCategory(ctx context.Context, app *App, ref string, kind core.Kind) (string, error) {
	if ref == "" {
		return "", nil
	}
	cats, err := app.Categories.ListCategories(ctx, kind)
	if err != nil {
		return "", err
	}
	for _, c := range cats {
		if c.ID == ref || strings.EqualFold(c.Name, strings.TrimSpace(ref)) {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("%w: no %s category %q", core.ErrInvalidInput, kind, ref)
}
