// Package store defines the ports the ledger needs from its persistence and
// notification collaborators.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Change operations carried by a Change.
const (
	OpAccountCreated = "account.created"
	OpBalanceMutated = "balance.mutated"
	OpTransfer       = "transfer"
	OpCategoryAdded  = "category.created"
	OpBudgetAdded    = "budget.created"
	OpSettingsSaved  = "settings.saved"
)

type (
	// Store is an atomic multi-document store. Writes made through a Tx
	// become visible together when fn returns nil and not at all otherwise.
	Store interface {
		Reader
		RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		SaveCurrencySettings(ctx context.Context, s core.CurrencySettings) error
		Close() error
	}

	// Tx is the view of the store inside one transaction.
	Tx interface {
		// GetAccount returns core.ErrUnknownAccount when id does not resolve.
		GetAccount(ctx context.Context, id string) (core.Account, error)
		// GetCategory returns core.ErrInvalidInput when id does not resolve.
		GetCategory(ctx context.Context, id string) (core.Category, error)
		// InsertAccount assigns ID and CreatedAt.
		InsertAccount(ctx context.Context, a core.Account) (core.Account, error)
		UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error
		// InsertTransaction assigns ID and a CreatedAt strictly greater than
		// every timestamp previously assigned by the store.
		InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		FindByIdempotencyKey(ctx context.Context, key string) (core.Transaction, bool, error)
	}

	Reader interface {
		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context) ([]core.Account, error)
		// ListTransactions returns every transaction ordered by CreatedAt.
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
		TransferLegs(ctx context.Context, transferID string) ([]core.Transaction, error)
		ListCategories(ctx context.Context) ([]core.Category, error)
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		// CurrencySettings reports false when nothing was ever saved.
		CurrencySettings(ctx context.Context) (core.CurrencySettings, bool, error)
		// Version changes whenever a committed write, from this process or
		// another one sharing the data, changes accounts, transactions,
		// categories or currency settings.
		Version(ctx context.Context) (string, error)
	}

	// Notifier publishes a change after it has been committed.
	Notifier interface {
		Publish(ctx context.Context, c Change) error
	}

	SettingsProvider interface {
		CurrencySettings(ctx context.Context) (core.CurrencySettings, error)
	}

	// Change describes a committed mutation.
	Change struct {
		Op             string
		AccountIDs     []string
		TransactionIDs []string
		CategoryIDs    []string
		At             time.Time
	}
)

// NopNotifier drops every change.
type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Change) error { return nil }
