package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

const (
	Checking AccountType = "checking"
	Savings  AccountType = "savings"
	Credit   AccountType = "credit"
	Cash     AccountType = "cash"
)

const (
	Deposit  Kind = "deposit"
	Withdraw Kind = "withdraw"
)

const (
	TRY Currency = "TRY"
	USD Currency = "USD"
	EUR Currency = "EUR"
)

// MinAccountNameLength is the shortest accepted account display name.
const MinAccountNameLength = 2

type (
	AccountType string
	Kind        string
	Currency    string

	Account struct {
		ID       string
		Name     string
		Type     AccountType
		Currency Currency
		// Balance always equals OpeningBalance plus the deltas of every
		// committed transaction referencing the account.
		Balance        decimal.Decimal
		OpeningBalance decimal.Decimal
		CreatedAt      time.Time
	}

	Transaction struct {
		ID           string // assigned by the store
		Kind         Kind
		Amount       decimal.Decimal // always > 0, direction lives in Kind
		Currency     Currency
		AccountID    string
		AccountName  string // snapshot at creation
		CategoryID   string
		CategoryName string // snapshot at creation
		Note         string
		// TransferID links the two legs of a transfer. Empty otherwise.
		TransferID     string
		IdempotencyKey string
		CreatedAt      time.Time // assigned by the store at commit
	}

	Category struct {
		ID   string
		Name string
		Kind Kind
	}

	Budget struct {
		ID         string
		Name       string
		Limit      decimal.Decimal
		Period     BudgetPeriod
		CategoryID string // empty means every withdraw counts
		CreatedAt  time.Time
	}

	// CurrencySettings holds the reporting currency and a rate table relative
	// to a common pivot: amount_in_pivot = amount_in_code * Rates[code].
	CurrencySettings struct {
		Base  Currency
		Rates map[Currency]decimal.Decimal
	}
)

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnknownAccount         = errors.New("unknown account")
	ErrSameAccountTransfer    = errors.New("cannot transfer to the same account")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrConcurrentModification = errors.New("concurrent modification conflict")
)

var (
	currenciesMu sync.RWMutex
	currencies   = map[Currency]struct{}{TRY: {}, USD: {}, EUR: {}}
)

// RegisterCurrency adds an ISO 4217 code to the supported set.
func RegisterCurrency(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return fmt.Errorf("%w: unknown currency code %q", ErrInvalidInput, code)
	}
	currenciesMu.Lock()
	currencies[Currency(code)] = struct{}{}
	currenciesMu.Unlock()
	return nil
}

// SupportedCurrencies returns the supported codes in sorted order.
func SupportedCurrencies() []Currency {
	currenciesMu.RLock()
	defer currenciesMu.RUnlock()
	out := make([]Currency, 0, len(currencies))
	for c := range currencies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c Currency) Valid() bool {
	currenciesMu.RLock()
	defer currenciesMu.RUnlock()
	_, ok := currencies[c]
	return ok
}

func (c Currency) String() string { return string(c) }

func (t AccountType) Valid() bool {
	switch t {
	case Checking, Savings, Credit, Cash:
		return true
	default:
		return false
	}
}

func (k Kind) Valid() bool {
	return k == Deposit || k == Withdraw
}

// Delta returns the signed effect of the transaction on its account balance.
func (t Transaction) Delta() decimal.Decimal {
	if t.Kind == Withdraw {
		return t.Amount.Neg()
	}
	return t.Amount
}

// IsTransferLeg reports whether t is one half of a transfer.
func (t Transaction) IsTransferLeg() bool {
	return t.TransferID != ""
}

func (a Account) Validate() error {
	if len([]rune(strings.TrimSpace(a.Name))) < MinAccountNameLength {
		return fmt.Errorf("%w: account name must be at least %d characters", ErrInvalidInput, MinAccountNameLength)
	}
	if !a.Type.Valid() {
		return fmt.Errorf("%w: unknown account type %q", ErrInvalidInput, a.Type)
	}
	if !a.Currency.Valid() {
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidInput, a.Currency)
	}
	if a.OpeningBalance.IsNegative() {
		return fmt.Errorf("%w: initial balance cannot be negative", ErrInvalidInput)
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown transaction kind %q", ErrInvalidInput, t.Kind)
	}
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	if t.AccountID == "" {
		return ErrUnknownAccount
	}
	if !t.Currency.Valid() {
		return fmt.Errorf("%w: unsupported currency %q", ErrInvalidInput, t.Currency)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: empty category name", ErrInvalidInput)
	}
	if !c.Kind.Valid() {
		return fmt.Errorf("%w: unknown category kind %q", ErrInvalidInput, c.Kind)
	}
	return nil
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("%w: empty budget name", ErrInvalidInput)
	}
	if b.Limit.IsNegative() {
		return fmt.Errorf("%w: budget limit cannot be negative", ErrInvalidInput)
	}
	if !b.Period.Valid() {
		return fmt.Errorf("%w: unknown budget period %q", ErrInvalidInput, b.Period)
	}
	return nil
}

// DefaultCurrencySettings mirrors the rates used before a user saves their own.
func DefaultCurrencySettings() CurrencySettings {
	return CurrencySettings{
		Base: TRY,
		Rates: map[Currency]decimal.Decimal{
			TRY: decimal.NewFromInt(1),
			USD: decimal.NewFromInt(30),
			EUR: decimal.NewFromInt(32),
		},
	}
}

func (s CurrencySettings) Validate() error {
	if !s.Base.Valid() {
		return fmt.Errorf("%w: unsupported base currency %q", ErrInvalidInput, s.Base)
	}
	if _, ok := s.Rates[s.Base]; !ok {
		return fmt.Errorf("%w: missing rate for base currency %s", ErrInvalidInput, s.Base)
	}
	for code, rate := range s.Rates {
		if !code.Valid() {
			return fmt.Errorf("%w: unsupported currency %q in rate table", ErrInvalidInput, code)
		}
		if !rate.IsPositive() {
			return fmt.Errorf("%w: rate for %s must be greater than zero", ErrInvalidInput, code)
		}
	}
	return nil
}

// Clone returns a copy whose rate table can be modified independently.
func (s CurrencySettings) Clone() CurrencySettings {
	out := CurrencySettings{Base: s.Base, Rates: make(map[Currency]decimal.Decimal, len(s.Rates))}
	for k, v := range s.Rates {
		out.Rates[k] = v
	}
	return out
}
