package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/storage"
	"ledger/internal/store"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openStore(t *testing.T, path string, opts ...storage.Option) *storage.Store {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "ledger.db")
	}
	s, err := storage.Open(context.Background(), path, 0, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteLedgerRoundTrip(t *testing.T) {
	st := openStore(t, "")
	svc := ledger.New(st)
	ctx := context.Background()

	food, err := st.CreateCategory(ctx, core.Category{Name: "Food", Kind: core.Withdraw})
	require.NoError(t, err)

	a, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Main", Type: core.Checking, Currency: core.TRY, InitialBalance: d("1500")})
	require.NoError(t, err)
	b, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Stash", Type: core.Savings, Currency: core.TRY, InitialBalance: d("200")})
	require.NoError(t, err)

	tx, err := svc.MutateBalance(ctx, ledger.MutationInput{AccountID: a.ID, Kind: core.Withdraw, Amount: d("0.10"), CategoryID: food.ID, Note: "tea"})
	require.NoError(t, err)
	assert.Equal(t, "Food", tx.CategoryName)

	res, err := svc.Transfer(ctx, ledger.TransferInput{FromID: a.ID, ToID: b.ID, Amount: d("300")})
	require.NoError(t, err)

	gotA, err := st.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, gotA.Balance.Equal(d("1199.9")), "balance %s", gotA.Balance)
	assert.True(t, gotA.OpeningBalance.Equal(d("1500")))
	assert.Equal(t, core.Checking, gotA.Type)

	txs, err := st.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for i := 1; i < len(txs); i++ {
		assert.True(t, txs[i].CreatedAt.After(txs[i-1].CreatedAt))
		assert.Greater(t, txs[i].ID, txs[i-1].ID)
	}
	assert.Equal(t, food.ID, txs[0].CategoryID)
	assert.Equal(t, "tea", txs[0].Note)
	assert.Empty(t, txs[0].TransferID)

	legs, err := st.TransferLegs(ctx, res.Withdraw.TransferID)
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, core.Withdraw, legs[0].Kind)
	assert.Equal(t, core.Deposit, legs[1].Kind)

	accounts, err := st.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Main", accounts[0].Name)
}

func TestSQLiteRollbackLeavesNoTrace(t *testing.T) {
	st := openStore(t, "")
	svc := ledger.New(st)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Main", Type: core.Cash, Currency: core.USD, InitialBalance: d("10")})
	require.NoError(t, err)

	boom := errors.New("abort")
	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpdateBalance(ctx, a.ID, d("999")); err != nil {
			return err
		}
		if _, err := tx.InsertTransaction(ctx, core.Transaction{Kind: core.Deposit, Amount: d("989"), Currency: core.USD, AccountID: a.ID, AccountName: a.Name}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := st.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(d("10")))
	txs, err := st.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)

	_, err = svc.Transfer(ctx, ledger.TransferInput{FromID: a.ID, ToID: "missing", Amount: d("1")})
	assert.ErrorIs(t, err, core.ErrUnknownAccount)
}

func TestSQLiteIdempotencyKey(t *testing.T) {
	st := openStore(t, "")
	svc := ledger.New(st)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Main", Type: core.Cash, Currency: core.EUR})
	require.NoError(t, err)

	in := ledger.MutationInput{AccountID: a.ID, Kind: core.Deposit, Amount: d("5"), IdempotencyKey: "req-1"}
	first, err := svc.MutateBalance(ctx, in)
	require.NoError(t, err)
	again, err := svc.MutateBalance(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	err = st.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.InsertTransaction(ctx, core.Transaction{Kind: core.Deposit, Amount: d("1"), Currency: core.EUR, AccountID: a.ID, IdempotencyKey: "req-1"})
		return err
	})
	assert.ErrorIs(t, err, core.ErrConcurrentModification)

	got, _ := st.GetAccount(ctx, a.ID)
	assert.True(t, got.Balance.Equal(d("5")))
}

func TestSQLiteConcurrentMutations(t *testing.T) {
	st := openStore(t, "")
	svc := ledger.New(st)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Main", Type: core.Checking, Currency: core.TRY})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MutateBalance(ctx, ledger.MutationInput{AccountID: a.ID, Kind: core.Deposit, Amount: d("1.25")})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := st.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(d("25")), "balance %s", got.Balance)
}

func TestSQLiteConcurrentTransfersDoNotOverdraw(t *testing.T) {
	st := openStore(t, "")
	svc := ledger.New(st)
	ctx := context.Background()

	a, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Main", Type: core.Checking, Currency: core.TRY, InitialBalance: d("100")})
	require.NoError(t, err)
	b, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Stash", Type: core.Savings, Currency: core.TRY})
	require.NoError(t, err)

	var (
		wg                      sync.WaitGroup
		mu                      sync.Mutex
		ok, insufficient, other int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Transfer(ctx, ledger.TransferInput{FromID: a.ID, ToID: b.ID, Amount: d("80")})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, core.ErrInsufficientFunds):
				insufficient++
			default:
				other++
				t.Errorf("unexpected transfer error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, insufficient)
	assert.Zero(t, other)

	gotA, err := st.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, gotA.Balance.Equal(d("20")), "balance %s", gotA.Balance)
	gotB, err := st.GetAccount(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, gotB.Balance.Equal(d("80")), "balance %s", gotB.Balance)

	txs, err := st.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, txs, 2, "one withdraw and one deposit leg")
}

func TestSQLiteVersionSeesOtherHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	reader := openStore(t, path)
	writer := openStore(t, path)
	ctx := context.Background()

	v0, err := reader.Version(ctx)
	require.NoError(t, err)
	again, err := reader.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v0, again)

	svc := ledger.New(writer)
	a, err := svc.CreateAccount(ctx, ledger.CreateAccountInput{Name: "Main", Type: core.Cash, Currency: core.TRY})
	require.NoError(t, err)
	v1, err := reader.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v0, v1, "account created")

	_, err = svc.MutateBalance(ctx, ledger.MutationInput{AccountID: a.ID, Kind: core.Deposit, Amount: d("500")})
	require.NoError(t, err)
	v2, err := reader.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v1, v2, "transaction committed")

	_, err = writer.CreateCategory(ctx, core.Category{Name: "Rent", Kind: core.Withdraw})
	require.NoError(t, err)
	v3, err := reader.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v2, v3, "category created")

	s := core.DefaultCurrencySettings()
	s.Rates[core.USD] = d("31")
	require.NoError(t, writer.SaveCurrencySettings(ctx, s))
	v4, err := reader.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v3, v4, "settings saved")

	s.Rates[core.USD] = d("32")
	require.NoError(t, writer.SaveCurrencySettings(ctx, s))
	v5, err := reader.Version(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, v4, v5, "settings saved again")
}

func TestSQLiteCategoriesBudgetsSettings(t *testing.T) {
	st := openStore(t, "")
	ctx := context.Background()

	require.NoError(t, st.Seed(ctx, []core.Category{{Name: "Rent", Kind: core.Withdraw}, {Name: "Salary", Kind: core.Deposit}}))
	require.NoError(t, st.Seed(ctx, []core.Category{{Name: "rent", Kind: core.Withdraw}}), "seeding twice skips duplicates")

	cats, err := st.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Rent", cats[0].Name)

	_, err = st.CreateCategory(ctx, core.Category{Name: "RENT", Kind: core.Withdraw})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = st.CreateCategory(ctx, core.Category{Name: "Rent", Kind: core.Deposit})
	assert.NoError(t, err, "same name with another kind is allowed")

	_, err = st.CreateBudget(ctx, core.Budget{Name: "Ghost", Limit: d("1"), Period: core.Monthly, CategoryID: "nope"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	b, err := st.CreateBudget(ctx, core.Budget{Name: "Housing", Limit: d("1200.50"), Period: core.Monthly, CategoryID: cats[0].ID})
	require.NoError(t, err)
	g, err := st.CreateBudget(ctx, core.Budget{Name: "All", Limit: d("5000"), Period: core.Yearly})
	require.NoError(t, err)

	budgets, err := st.ListBudgets(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 2)
	assert.Equal(t, b.ID, budgets[0].ID)
	assert.True(t, budgets[0].Limit.Equal(d("1200.5")))
	assert.Equal(t, g.ID, budgets[1].ID)
	assert.Empty(t, budgets[1].CategoryID)

	_, ok, err := st.CurrencySettings(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	settings := core.DefaultCurrencySettings()
	settings.Base = core.EUR
	settings.Rates[core.USD] = d("30.125")
	require.NoError(t, st.SaveCurrencySettings(ctx, settings))
	settings.Rates[core.USD] = d("31")
	require.NoError(t, st.SaveCurrencySettings(ctx, settings))

	got, ok, err := st.CurrencySettings(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, core.EUR, got.Base)
	assert.True(t, got.Rates[core.USD].Equal(d("31")))
	assert.Len(t, got.Rates, 3)

	bad := core.DefaultCurrencySettings()
	bad.Rates[core.EUR] = decimal.Zero
	assert.ErrorIs(t, st.SaveCurrencySettings(ctx, bad), core.ErrInvalidInput)
}

func TestSQLiteReopenKeepsTimestampsIncreasing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()
	future := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := storage.Open(ctx, path, 0, storage.WithClock(func() time.Time { return future }))
	require.NoError(t, err)
	acc, err := ledger.New(first).CreateAccount(ctx, ledger.CreateAccountInput{Name: "Main", Type: core.Cash, Currency: core.TRY})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A clock running behind the persisted data must not go backwards.
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	second := openStore(t, path, storage.WithClock(func() time.Time { return past }))
	tx, err := ledger.New(second).MutateBalance(ctx, ledger.MutationInput{AccountID: acc.ID, Kind: core.Deposit, Amount: d("1")})
	require.NoError(t, err)
	assert.True(t, tx.CreatedAt.After(future), "created %s", tx.CreatedAt)
}

// busyError mimics *sqlite.Error for a lock that outlived busy_timeout.
type busyError struct{ code int }

func (e busyError) Error() string { return "database is locked" }
func (e busyError) Code() int     { return e.code }

func TestRunInTxMapsLockErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(sqlmock.Sqlmock)
	}{
		{"busy on begin", func(m sqlmock.Sqlmock) {
			m.ExpectBegin().WillReturnError(busyError{code: 5})
		}},
		{"locked on commit", func(m sqlmock.Sqlmock) {
			m.ExpectBegin()
			m.ExpectCommit().WillReturnError(busyError{code: 6})
		}},
		{"extended busy code", func(m sqlmock.Sqlmock) {
			m.ExpectBegin().WillReturnError(busyError{code: 5 | (2 << 8)})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.setup(mock)

			err = storage.New(db).RunInTx(context.Background(), func(context.Context, store.Tx) error { return nil })
			assert.ErrorIs(t, err, core.ErrConcurrentModification)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts SET balance").
		WithArgs("42", "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = storage.New(db).RunInTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.UpdateBalance(ctx, "acc-1", d("42"))
	})
	assert.ErrorIs(t, err, core.ErrUnknownAccount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxPassesOtherErrorsThrough(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(busyError{code: 1})
	err = storage.New(db).RunInTx(context.Background(), func(context.Context, store.Tx) error { return nil })
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrConcurrentModification))
}
