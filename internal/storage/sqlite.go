// Package storage persists the ledger in a SQLite database.
//
// Every RunInTx call is a BEGIN IMMEDIATE transaction, so writers serialize on
// the database lock. Amounts are stored as decimal TEXT and timestamps as
// fixed width UTC strings that sort chronologically.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DefaultBusyTimeout is how long a writer waits for the database lock.
const DefaultBusyTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Store struct {
	db     *sql.DB
	clock  *store.Clock
	logger *log.Logger
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = store.NewClock(now) }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger.WithComponent(log.ComponentStorage) }
}

// DSN builds a modernc.org/sqlite connection string with the pragmas the store
// relies on.
func DSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate",
		path, busyTimeout.Milliseconds())
}

// Open creates the database file if needed, applies migrations and returns a
// ready store.
func Open(ctx context.Context, path string, busyTimeout time.Duration, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := DSN(path, busyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := New(db, opts...)
	if err := s.observeLatest(ctx, s.db); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.InfoContext(ctx, "SQLite store opened", "path", path)
	return s, nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: store.NewClock(nil), logger: log.Default().WithComponent(log.ComponentStorage)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Seed inserts the given categories, skipping the ones that already exist.
func (s *Store) Seed(ctx context.Context, cats []core.Category) error {
	for _, c := range cats {
		if _, err := s.CreateCategory(ctx, c); err != nil {
			if errors.Is(err, core.ErrInvalidInput) {
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.withTx(ctx, func(ctx context.Context, t *sqlTx) error { return fn(ctx, t) })
}

func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, t *sqlTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("begin transaction: %w", err))
	}
	if err := fn(ctx, &sqlTx{s: s, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.ErrorContext(ctx, "Rollback failed", log.FieldError, rbErr)
		}
		return mapError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.ID = store.NewID()
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, name, kind) VALUES (?, ?, ?)`, c.ID, c.Name, string(c.Kind))
	if isConstraint(err) {
		return core.Category{}, fmt.Errorf("%w: category %q already exists", core.ErrInvalidInput, c.Name)
	}
	if err != nil {
		return core.Category{}, mapError(fmt.Errorf("insert category: %w", err))
	}
	return c, nil
}

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	err := s.withTx(ctx, func(ctx context.Context, t *sqlTx) error {
		if b.CategoryID != "" {
			if _, err := t.GetCategory(ctx, b.CategoryID); err != nil {
				return err
			}
		}
		if err := t.observe(ctx); err != nil {
			return err
		}
		b.ID = store.NewID()
		b.CreatedAt = s.clock.Next()
		_, err := t.tx.ExecContext(ctx,
			`INSERT INTO budgets (id, name, limit_amount, period, category_id, created_at) VALUES (?, ?, ?, ?, NULLIF(?, ''), ?)`,
			b.ID, b.Name, b.Limit.String(), string(b.Period), b.CategoryID, formatTime(b.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert budget: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (s *Store) SaveCurrencySettings(ctx context.Context, cs core.CurrencySettings) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	rates := make(map[string]string, len(cs.Rates))
	for code, rate := range cs.Rates {
		rates[string(code)] = rate.String()
	}
	raw, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("encode rates: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO currency_settings (id, base, rates, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET base = excluded.base, rates = excluded.rates, updated_at = excluded.updated_at`,
		string(cs.Base), string(raw), formatTime(time.Now()))
	if err != nil {
		return mapError(fmt.Errorf("save currency settings: %w", err))
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return getAccount(ctx, s.db, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, mapError(fmt.Errorf("list accounts: %w", err))
	}
	defer rows.Close()

	out := []core.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	return queryTransactions(ctx, s.db, `SELECT `+transactionColumns+` FROM transactions ORDER BY created_at, id`)
}

func (s *Store) TransferLegs(ctx context.Context, transferID string) ([]core.Transaction, error) {
	if transferID == "" {
		return nil, nil
	}
	return queryTransactions(ctx, s.db,
		`SELECT `+transactionColumns+` FROM transactions WHERE transfer_id = ? ORDER BY created_at, id`, transferID)
}

func (s *Store) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, kind FROM categories ORDER BY name, kind`)
	if err != nil {
		return nil, mapError(fmt.Errorf("list categories: %w", err))
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var c core.Category
		var kind string
		if err := rows.Scan(&c.ID, &c.Name, &kind); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.Kind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, limit_amount, period, COALESCE(category_id, ''), created_at FROM budgets ORDER BY created_at, id`)
	if err != nil {
		return nil, mapError(fmt.Errorf("list budgets: %w", err))
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		var (
			b               core.Budget
			period, created string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.Limit, &period, &b.CategoryID, &created); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Period = core.BudgetPeriod(period)
		if b.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) CurrencySettings(ctx context.Context) (core.CurrencySettings, bool, error) {
	var base, raw string
	err := s.db.QueryRowContext(ctx, `SELECT base, rates FROM currency_settings WHERE id = 1`).Scan(&base, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return core.CurrencySettings{}, false, nil
	}
	if err != nil {
		return core.CurrencySettings{}, false, mapError(fmt.Errorf("load currency settings: %w", err))
	}

	var rates map[string]string
	if err := json.Unmarshal([]byte(raw), &rates); err != nil {
		return core.CurrencySettings{}, false, fmt.Errorf("decode rates: %w", err)
	}
	out := core.CurrencySettings{Base: core.Currency(base), Rates: make(map[core.Currency]decimal.Decimal, len(rates))}
	for code, v := range rates {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return core.CurrencySettings{}, false, fmt.Errorf("decode rate for %s: %w", code, err)
		}
		out.Rates[core.Currency(code)] = rate
	}
	return out, true, nil
}

// Version fingerprints the rows reports are computed from. Rows are only
// ever appended, so counts plus the newest timestamp catch every commit,
// including commits made by other processes.
func (s *Store) Version(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM transactions)
			|| '/' || COALESCE((SELECT MAX(created_at) FROM transactions), '')
			|| '/' || (SELECT COUNT(*) FROM accounts)
			|| '/' || (SELECT COUNT(*) FROM categories)
			|| '/' || COALESCE((SELECT updated_at || base || rates FROM currency_settings WHERE id = 1), '')`).Scan(&v)
	if err != nil {
		return "", mapError(fmt.Errorf("read store version: %w", err))
	}
	return v, nil
}

// observeLatest raises the clock above every persisted timestamp, including
// the ones written by other processes sharing the file.
func (s *Store) observeLatest(ctx context.Context, q querier) error {
	var latest string
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ts), '') FROM (
			SELECT MAX(created_at) AS ts FROM transactions
			UNION ALL SELECT MAX(created_at) FROM accounts
			UNION ALL SELECT MAX(created_at) FROM budgets
		)`).Scan(&latest)
	if err != nil {
		return mapError(fmt.Errorf("read latest timestamp: %w", err))
	}
	if latest == "" {
		return nil
	}
	t, err := parseTime(latest)
	if err != nil {
		return err
	}
	s.clock.Observe(t)
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlTx struct {
	s        *Store
	tx       *sql.Tx
	observed bool
}

func (t *sqlTx) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return getAccount(ctx, t.tx, id)
}

func (t *sqlTx) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	var kind string
	err := t.tx.QueryRowContext(ctx, `SELECT id, name, kind FROM categories WHERE id = ?`, id).Scan(&c.ID, &c.Name, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, fmt.Errorf("%w: unknown category %q", core.ErrInvalidInput, id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	c.Kind = core.Kind(kind)
	return c, nil
}

func (t *sqlTx) InsertAccount(ctx context.Context, a core.Account) (core.Account, error) {
	if err := t.observe(ctx); err != nil {
		return core.Account{}, err
	}
	a.ID = store.NewID()
	a.CreatedAt = t.s.clock.Next()
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO accounts (id, name, type, currency, balance, opening_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, string(a.Type), string(a.Currency), a.Balance.String(), a.OpeningBalance.String(), formatTime(a.CreatedAt))
	if err != nil {
		return core.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return a, nil
}

func (t *sqlTx) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, balance.String(), accountID)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", core.ErrUnknownAccount, accountID)
	}
	return nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr core.Transaction) (core.Transaction, error) {
	if err := t.observe(ctx); err != nil {
		return core.Transaction{}, err
	}
	tr.CreatedAt = t.s.clock.Next()
	tr.ID = store.NewTransactionID(tr.CreatedAt)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, kind, amount, currency, account_id, account_name, category_id, category_name,
			note, transfer_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?)`,
		tr.ID, string(tr.Kind), tr.Amount.String(), string(tr.Currency), tr.AccountID, tr.AccountName,
		tr.CategoryID, tr.CategoryName, tr.Note, tr.TransferID, tr.IdempotencyKey, formatTime(tr.CreatedAt))
	if isConstraint(err) && tr.IdempotencyKey != "" {
		return core.Transaction{}, fmt.Errorf("%w: idempotency key %q already used", core.ErrConcurrentModification, tr.IdempotencyKey)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tr, nil
}

func (t *sqlTx) FindByIdempotencyKey(ctx context.Context, key string) (core.Transaction, bool, error) {
	if key == "" {
		return core.Transaction{}, false, nil
	}
	txs, err := queryTransactions(ctx, t.tx, `SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = ?`, key)
	if err != nil {
		return core.Transaction{}, false, err
	}
	if len(txs) == 0 {
		return core.Transaction{}, false, nil
	}
	return txs[0], true, nil
}

// observe runs once per transaction, after the write lock is held.
func (t *sqlTx) observe(ctx context.Context) error {
	if t.observed {
		return nil
	}
	if err := t.s.observeLatest(ctx, t.tx); err != nil {
		return err
	}
	t.observed = true
	return nil
}

const accountColumns = `id, name, type, currency, balance, opening_balance, created_at`

const transactionColumns = `id, kind, amount, currency, account_id, account_name, COALESCE(category_id, ''), category_name,
	note, COALESCE(transfer_id, ''), COALESCE(idempotency_key, ''), created_at`

type scanner interface {
	Scan(dest ...any) error
}

func getAccount(ctx context.Context, q querier, id string) (core.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%w: %q", core.ErrUnknownAccount, id)
	}
	return a, err
}

func scanAccount(row scanner) (core.Account, error) {
	var (
		a                 core.Account
		typ, cur, created string
	)
	if err := row.Scan(&a.ID, &a.Name, &typ, &cur, &a.Balance, &a.OpeningBalance, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Account{}, err
		}
		return core.Account{}, fmt.Errorf("scan account: %w", err)
	}
	a.Type = core.AccountType(typ)
	a.Currency = core.Currency(cur)
	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return core.Account{}, err
	}
	return a, nil
}

func queryTransactions(ctx context.Context, q querier, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("query transactions: %w", err))
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		var (
			t                  core.Transaction
			kind, cur, created string
		)
		err := rows.Scan(&t.ID, &kind, &t.Amount, &cur, &t.AccountID, &t.AccountName, &t.CategoryID, &t.CategoryName,
			&t.Note, &t.TransferID, &t.IdempotencyKey, &created)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Kind = core.Kind(kind)
		t.Currency = core.Currency(cur)
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// coder is implemented by *sqlite.Error.
type coder interface {
	Code() int
}

func primaryCode(err error) (int, bool) {
	var c coder
	if !errors.As(err, &c) {
		return 0, false
	}
	return c.Code() & 0xff, true
}

func isConstraint(err error) bool {
	code, ok := primaryCode(err)
	return ok && code == sqlite3.SQLITE_CONSTRAINT
}

// mapError turns lock contention that outlived the busy timeout into
// core.ErrConcurrentModification. Other errors pass through.
func mapError(err error) error {
	if err == nil || errors.Is(err, core.ErrConcurrentModification) {
		return err
	}
	if code, ok := primaryCode(err); ok && (code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED) {
		return fmt.Errorf("%w: %v", core.ErrConcurrentModification, err)
	}
	return err
}
