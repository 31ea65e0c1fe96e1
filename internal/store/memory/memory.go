// Package memory is an in-process implementation of store.Store.
//
// Transactions are serialized under one mutex. Writes are staged on the Tx and
// applied only when the callback returns nil.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/store"
)

type Store struct {
	mu         sync.Mutex
	clock      *store.Clock
	accounts   map[string]core.Account
	order      []string
	txs        []core.Transaction
	byKey      map[string]int
	categories []core.Category
	budgets    []core.Budget
	settings   *core.CurrencySettings
	version    uint64
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = store.NewClock(now) }
}

func New(opts ...Option) *Store {
	s := &Store{
		clock:    store.NewClock(nil),
		accounts: map[string]core.Account{},
		byKey:    map[string]int{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewFromFiles seeds categories from base/seed_categories.txt, see
// store.SeedCategories. Invalid or duplicate lines are skipped.
func NewFromFiles(base string, opts ...Option) *Store {
	s := New(opts...)
	for _, c := range store.SeedCategories(base) {
		if _, err := s.CreateCategory(context.Background(), c); err != nil {
			continue
		}
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, balances: map[string]decimal.Decimal{}, keys: map[string]int{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) && existing.Kind == c.Kind {
			return core.Category{}, fmt.Errorf("%w: category %q already exists", core.ErrInvalidInput, c.Name)
		}
	}
	c.ID = store.NewID()
	s.categories = append(s.categories, c)
	s.version++
	return c, nil
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.CategoryID != "" && s.category(b.CategoryID) == nil {
		return core.Budget{}, fmt.Errorf("%w: unknown category %q", core.ErrInvalidInput, b.CategoryID)
	}
	b.ID = store.NewID()
	b.CreatedAt = s.clock.Next()
	s.budgets = append(s.budgets, b)
	s.version++
	return b, nil
}

func (s *Store) SaveCurrencySettings(_ context.Context, cs core.CurrencySettings) error {
	if err := cs.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cs.Clone()
	s.settings = &c
	s.version++
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("%w: %q", core.ErrUnknownAccount, id)
	}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txs...), nil
}

func (s *Store) TransferLegs(_ context.Context, transferID string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txs {
		if transferID != "" && t.TransferID == transferID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.Category(nil), s.categories...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Budget(nil), s.budgets...), nil
}

func (s *Store) CurrencySettings(_ context.Context) (core.CurrencySettings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return core.CurrencySettings{}, false, nil
	}
	return s.settings.Clone(), true, nil
}

func (s *Store) Version(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strconv.FormatUint(s.version, 10), nil
}

// category must be called with mu held.
func (s *Store) category(id string) *core.Category {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return &s.categories[i]
		}
	}
	return nil
}

type memTx struct {
	s        *Store
	accounts []core.Account
	balances map[string]decimal.Decimal
	txs      []core.Transaction
	keys     map[string]int
}

func (t *memTx) GetAccount(_ context.Context, id string) (core.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		found := false
		for _, staged := range t.accounts {
			if staged.ID == id {
				a, found = staged, true
			}
		}
		if !found {
			return core.Account{}, fmt.Errorf("%w: %q", core.ErrUnknownAccount, id)
		}
	}
	if b, ok := t.balances[id]; ok {
		a.Balance = b
	}
	return a, nil
}

func (t *memTx) GetCategory(_ context.Context, id string) (core.Category, error) {
	c := t.s.category(id)
	if c == nil {
		return core.Category{}, fmt.Errorf("%w: unknown category %q", core.ErrInvalidInput, id)
	}
	return *c, nil
}

func (t *memTx) InsertAccount(_ context.Context, a core.Account) (core.Account, error) {
	a.ID = store.NewID()
	a.CreatedAt = t.s.clock.Next()
	t.accounts = append(t.accounts, a)
	return a, nil
}

func (t *memTx) UpdateBalance(ctx context.Context, accountID string, balance decimal.Decimal) error {
	if _, err := t.GetAccount(ctx, accountID); err != nil {
		return err
	}
	t.balances[accountID] = balance
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr core.Transaction) (core.Transaction, error) {
	if tr.IdempotencyKey != "" {
		_, committed := t.s.byKey[tr.IdempotencyKey]
		_, staged := t.keys[tr.IdempotencyKey]
		if committed || staged {
			return core.Transaction{}, fmt.Errorf("%w: idempotency key %q already used", core.ErrConcurrentModification, tr.IdempotencyKey)
		}
		t.keys[tr.IdempotencyKey] = len(t.txs)
	}
	tr.CreatedAt = t.s.clock.Next()
	tr.ID = store.NewTransactionID(tr.CreatedAt)
	t.txs = append(t.txs, tr)
	return tr, nil
}

func (t *memTx) FindByIdempotencyKey(_ context.Context, key string) (core.Transaction, bool, error) {
	if i, ok := t.keys[key]; ok {
		return t.txs[i], true, nil
	}
	if i, ok := t.s.byKey[key]; ok {
		return t.s.txs[i], true, nil
	}
	return core.Transaction{}, false, nil
}

// commit must be called with the store mutex held.
func (t *memTx) commit() {
	s := t.s
	for _, a := range t.accounts {
		s.accounts[a.ID] = a
		s.order = append(s.order, a.ID)
	}
	for id, b := range t.balances {
		a := s.accounts[id]
		a.Balance = b
		s.accounts[id] = a
	}
	for _, tr := range t.txs {
		if tr.IdempotencyKey != "" {
			s.byKey[tr.IdempotencyKey] = len(s.txs)
		}
		s.txs = append(s.txs, tr)
	}
	if len(t.accounts)+len(t.balances)+len(t.txs) > 0 {
		s.version++
	}
}
