package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/config"
	"ledger/internal/core"
)

func init() {
	color.NoColor = true
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                "8081",
		RateLimitRPS:        10,
		RateLimitBurst:      10,
		DataBackend:         "memory",
		SeedDir:             t.TempDir(),
		NotifyBackend:       "none",
		WithdrawFloorTypes:  "cash",
		ReportCacheSize:     16,
		ReportCacheTTL:      time.Minute,
		BudgetCheckInterval: time.Hour,
		LogLevel:            "error",
		LogFormat:           "text",
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app, err := NewApp(context.Background(), testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

// ledgerctl runs one command line against app, which stays open between
// calls.
func ledgerctl(t *testing.T, app *App, args ...string) (subcommands.ExitStatus, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	fs := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	commander := subcommands.NewCommander(fs, "ledgerctl")
	commander.Output = &out
	commander.Error = &errOut
	open := func(context.Context) (*App, func() error, error) {
		return app, func() error { return nil }, nil
	}
	Register(commander, open, &out, &errOut)
	require.NoError(t, fs.Parse(args))
	status := commander.Execute(context.Background())
	return status, out.String(), errOut.String()
}

func balance(t *testing.T, app *App, name string) string {
	t.Helper()
	acc, err := resolveAccount(context.Background(), app.Backend.Store, name)
	require.NoError(t, err)
	return acc.Balance.String()
}

func TestLedgerctlAccountsAndMutations(t *testing.T) {
	app := newTestApp(t)

	status, out, _ := ledgerctl(t, app, "accounts")
	assert.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "No accounts yet")

	status, out, errOut := ledgerctl(t, app, "open", "-name", "Main", "-initial", "1500")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "Created Main")

	status, _, errOut = ledgerctl(t, app, "open", "-name", "Pocket", "-type", "cash", "-currency", "usd", "-initial", "50")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)

	status, _, _ = ledgerctl(t, app, "open", "-name", "X")
	assert.Equal(t, subcommands.ExitUsageError, status, "name too short")
	status, _, _ = ledgerctl(t, app, "open")
	assert.Equal(t, subcommands.ExitUsageError, status)

	status, out, errOut = ledgerctl(t, app, "deposit", "-category", "salary", "-key", "may", "main", "100,50")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "Recorded deposit")
	status, _, _ = ledgerctl(t, app, "deposit", "-category", "salary", "-key", "may", "main", "100,50")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Equal(t, "1600.5", balance(t, app, "Main"), "replayed key does not apply twice")

	// cash accounts are floored at zero
	status, _, errOut = ledgerctl(t, app, "withdraw", "Pocket", "60")
	assert.Equal(t, subcommands.ExitFailure, status)
	assert.Contains(t, errOut, core.ErrInsufficientFunds.Error())
	assert.Equal(t, "50", balance(t, app, "Pocket"))

	cases := []struct {
		args []string
		want subcommands.ExitStatus
	}{
		{[]string{"deposit", "Main"}, subcommands.ExitUsageError},
		{[]string{"deposit", "Main", "-3"}, subcommands.ExitUsageError},
		{[]string{"deposit", "Main", "abc"}, subcommands.ExitUsageError},
		{[]string{"deposit", "Nobody", "3"}, subcommands.ExitFailure},
		{[]string{"withdraw", "-category", "Salary", "Main", "3"}, subcommands.ExitUsageError},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.args), func(t *testing.T) {
			status, _, _ := ledgerctl(t, app, tc.args...)
			assert.Equal(t, tc.want, status)
		})
	}

	status, out, _ = ledgerctl(t, app, "accounts")
	assert.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "Main")
	assert.Contains(t, out, "Pocket")
	assert.Contains(t, out, "Total:")
}

func TestLedgerctlTransfersAndListing(t *testing.T) {
	app := newTestApp(t)
	ledgerctl(t, app, "open", "-name", "Account A", "-initial", "1500")
	ledgerctl(t, app, "open", "-name", "Account B", "-type", "savings", "-initial", "300")
	ledgerctl(t, app, "open", "-name", "Dollars", "-currency", "USD")

	status, out, errOut := ledgerctl(t, app, "transfer", "-note", "rent", "account a", "Account B", "200")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "Transferred 200 from Account A to Account B")
	assert.NotContains(t, out, "Warning")
	assert.Equal(t, "1300", balance(t, app, "Account A"))
	assert.Equal(t, "500", balance(t, app, "Account B"))

	status, _, _ = ledgerctl(t, app, "transfer", "Account B", "Account A", "500.01")
	assert.Equal(t, subcommands.ExitFailure, status)
	assert.Equal(t, "500", balance(t, app, "Account B"))

	status, _, _ = ledgerctl(t, app, "transfer", "Account A", "Account A", "1")
	assert.Equal(t, subcommands.ExitUsageError, status)

	status, out, _ = ledgerctl(t, app, "transfer", "Account A", "Dollars", "10")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "Warning: TRY and USD differ")

	status, out, _ = ledgerctl(t, app, "tx", "-p", "all")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "4 transaction(s)")
	assert.Contains(t, out, "Transfer")

	status, out, _ = ledgerctl(t, app, "tx", "-a", "Dollars")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "1 transaction(s)")

	ledgerctl(t, app, "deposit", "Dollars", "5")
	status, out, _ = ledgerctl(t, app, "tx", "-p", "all", "-no-transfers")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "1 transaction(s)")
	assert.NotContains(t, out, "Transfer")

	status, _, _ = ledgerctl(t, app, "tx", "-m", "2025/01")
	assert.Equal(t, subcommands.ExitUsageError, status)
	status, _, _ = ledgerctl(t, app, "tx", "-p", "weekly")
	assert.Equal(t, subcommands.ExitUsageError, status)
}

func TestLedgerctlReportsBudgetsAndSettings(t *testing.T) {
	app := newTestApp(t)
	ledgerctl(t, app, "open", "-name", "Main")
	ledgerctl(t, app, "deposit", "-category", "Salary", "Main", "1000")

	status, out, errOut := ledgerctl(t, app, "budgets")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "No budgets defined")

	status, out, errOut = ledgerctl(t, app, "budgets", "-add", "Food", "-limit", "100", "-category", "groceries")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "Created budget Food")

	status, _, _ = ledgerctl(t, app, "budgets", "-add", "Nope")
	assert.Equal(t, subcommands.ExitUsageError, status)
	status, _, _ = ledgerctl(t, app, "budgets", "-add", "Nope", "-limit", "5", "-category", "Salary")
	assert.Equal(t, subcommands.ExitUsageError, status, "deposit categories cannot carry a budget")

	ledgerctl(t, app, "withdraw", "-category", "Groceries", "Main", "40")
	status, out, _ = ledgerctl(t, app, "budgets")
	assert.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "40%")

	ledgerctl(t, app, "withdraw", "-category", "Groceries", "Main", "80")
	status, out, _ = ledgerctl(t, app, "budgets")
	assert.Equal(t, subcommands.ExitFailure, status, "over budget")
	assert.Contains(t, out, "100%")

	status, out, _ = ledgerctl(t, app, "report")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "Transactions: 3")
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "100.0%")

	status, out, _ = ledgerctl(t, app, "report", "-p", "all", "-k", "deposit")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "all time")
	assert.Contains(t, out, "Salary")

	status, out, _ = ledgerctl(t, app, "categories", "-add", "Bonus", "-k", "deposit")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "Created deposit category Bonus")
	status, out, _ = ledgerctl(t, app, "categories", "-k", "deposit")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "Bonus")
	assert.Contains(t, out, "Salary")
	assert.NotContains(t, out, "Groceries")
	status, _, _ = ledgerctl(t, app, "categories", "-add", "bonus", "-k", "deposit")
	assert.Equal(t, subcommands.ExitUsageError, status)

	status, out, _ = ledgerctl(t, app, "rates")
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out, "Base: TRY")

	status, out, errOut = ledgerctl(t, app, "rates", "-base", "usd", "-set", "EUR=33")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)
	assert.Contains(t, out, "Saved")
	assert.Contains(t, out, "Base: USD")
	s, err := app.Settings.CurrencySettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.USD, s.Base)
	assert.Equal(t, "33", s.Rates[core.EUR].String())

	for _, bad := range [][]string{{"rates", "-set", "EUR"}, {"rates", "-set", "EUR=0"}, {"rates", "-base", "XYZ"}} {
		status, _, _ = ledgerctl(t, app, bad...)
		assert.Equal(t, subcommands.ExitUsageError, status, "%v", bad)
	}
}

func TestResolveAccountAmbiguousName(t *testing.T) {
	app := newTestApp(t)
	ledgerctl(t, app, "open", "-name", "Twin")
	ledgerctl(t, app, "open", "-name", "twin")

	_, err := resolveAccount(context.Background(), app.Backend.Store, "TWIN")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = resolveAccount(context.Background(), app.Backend.Store, "ghost")
	assert.ErrorIs(t, err, core.ErrUnknownAccount)
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		err  error
		want subcommands.ExitStatus
	}{
		{nil, subcommands.ExitSuccess},
		{fmt.Errorf("%w: bad", core.ErrInvalidInput), subcommands.ExitUsageError},
		{core.ErrInvalidAmount, subcommands.ExitUsageError},
		{core.ErrSameAccountTransfer, subcommands.ExitUsageError},
		{core.ErrUnknownAccount, subcommands.ExitFailure},
		{core.ErrInsufficientFunds, subcommands.ExitFailure},
		{core.ErrConcurrentModification, subcommands.ExitFailure},
		{errors.New("boom"), subcommands.ExitFailure},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitStatus(tt.err), "%v", tt.err)
	}
}

func TestOpenFailureIsReported(t *testing.T) {
	var out, errOut bytes.Buffer
	fs := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	commander := subcommands.NewCommander(fs, "ledgerctl")
	Register(commander, OpenApp(func(context.Context) (*App, error) {
		return nil, errors.New("database is locked")
	}), &out, &errOut)
	require.NoError(t, fs.Parse([]string{"accounts"}))

	assert.Equal(t, subcommands.ExitFailure, commander.Execute(context.Background()))
	assert.Contains(t, errOut.String(), "database is locked")
}

func TestNewAppRejectsBadFloorTypes(t *testing.T) {
	cfg := testConfig(t)
	cfg.WithdrawFloorTypes = "cash,piggybank"
	_, err := NewApp(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATA_BACKEND", "memory")
	t.Setenv("NOTIFY_BACKEND", "none")
	t.Setenv("SUPPORTED_CURRENCIES", "gbp")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.DataBackend)
	assert.True(t, core.Currency("GBP").Valid())

	t.Setenv("SUPPORTED_CURRENCIES", "ZZZ")
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("SUPPORTED_CURRENCIES", "")
	t.Setenv("PORT", "nope")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	cfg := testConfig(t)
	var buf bytes.Buffer
	logger, err := SetupLogger(cfg, "test", &buf)
	require.NoError(t, err)
	logger.Error("visible")
	logger.Info("hidden")
	assert.Contains(t, buf.String(), "visible")
	assert.NotContains(t, buf.String(), "hidden")

	cfg.LogLevel = "chatty"
	_, err = SetupLogger(cfg, "test", &buf)
	assert.Error(t, err)
}

func TestReportsSeeWritesFromAnotherProcess(t *testing.T) {
	cfg := testConfig(t)
	cfg.DataBackend = "sqlite"
	cfg.SQLiteDBPath = filepath.Join(t.TempDir(), "ledger.db")
	cfg.SQLiteBusyTimeout = 5 * time.Second

	api, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })
	ctl, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctl.Close() })

	ctx := context.Background()
	status, _, errOut := ledgerctl(t, ctl, "open", "-name", "Main", "-initial", "100")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)

	before, err := api.Reports.Summary(ctx, core.PeriodAll, time.Now())
	require.NoError(t, err)
	assert.True(t, before.Summary.Income.IsZero())

	status, _, errOut = ledgerctl(t, ctl, "deposit", "main", "500")
	require.Equal(t, subcommands.ExitSuccess, status, errOut)

	after, err := api.Reports.Summary(ctx, core.PeriodAll, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "500", after.Summary.Income.String())
	assert.Equal(t, 1, after.Summary.Count)

	settings := core.DefaultCurrencySettings()
	settings.Base = core.USD
	settings.Rates[core.USD] = decimal.NewFromInt(1)
	settings.Rates[core.TRY] = decimal.RequireFromString("0.04")
	require.NoError(t, ctl.Settings.Save(ctx, settings))

	rebased, err := api.Reports.Summary(ctx, core.PeriodAll, time.Now())
	require.NoError(t, err)
	assert.Equal(t, core.USD, rebased.Base)
	assert.Equal(t, "20", rebased.Summary.Income.String())
}
