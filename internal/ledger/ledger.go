// Package ledger implements the balance mutating operations: account
// creation, deposits and withdrawals, and transfers between accounts.
//
// Every operation reads and writes inside a single store transaction. The
// service holds no locks of its own.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

type (
	CreateAccountInput struct {
		Name           string           `validate:"min=2,max=80"`
		Type           core.AccountType `validate:"required,oneof=checking savings credit cash"`
		Currency       core.Currency    `validate:"required,currency"`
		InitialBalance decimal.Decimal
	}

	MutationInput struct {
		AccountID      string
		Kind           core.Kind `validate:"required,oneof=deposit withdraw"`
		Amount         decimal.Decimal
		CategoryID     string
		Note           string `validate:"max=500"`
		IdempotencyKey string `validate:"max=128"`
	}

	TransferInput struct {
		FromID         string
		ToID           string
		Amount         decimal.Decimal
		Note           string `validate:"max=500"`
		IdempotencyKey string `validate:"max=120"`
	}

	// TransferResult holds both legs of a transfer. CurrencyMismatch is set
	// when the accounts hold different currencies: the same numeric amount
	// was moved without conversion.
	TransferResult struct {
		Withdraw         core.Transaction
		Deposit          core.Transaction
		CurrencyMismatch bool
	}
)

// Service is the ledger store. It is safe for concurrent use.
type Service struct {
	store    store.Store
	notifier store.Notifier
	floor    FloorPolicy
	validate *validator.Validate
	logger   *log.Logger
}

type Option func(*Service)

// WithNotifier publishes a store.Change after every committed mutation.
func WithNotifier(n store.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithFloorPolicy(p FloorPolicy) Option {
	return func(s *Service) { s.floor = p }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: store.NopNotifier{},
		validate: NewValidator(),
		logger:   log.Default().WithComponent(log.ComponentLedger),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewValidator returns a validator that also understands the "currency" tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return core.Currency(fl.Field().String()).Valid()
	})
	return v
}

// CreateAccount validates in and stores a new account whose balance equals
// the initial balance.
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (core.Account, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = core.Currency(strings.ToUpper(string(in.Currency)))
	if err := s.check(in); err != nil {
		return core.Account{}, err
	}
	acc := core.Account{
		Name:           in.Name,
		Type:           in.Type,
		Currency:       in.Currency,
		Balance:        in.InitialBalance,
		OpeningBalance: in.InitialBalance,
	}
	if err := acc.Validate(); err != nil {
		return core.Account{}, err
	}

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		acc, err = tx.InsertAccount(ctx, acc)
		return err
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	fields := log.NewFields().
		WithOperation(log.OpCreate).
		WithMovement(acc.ID, acc.OpeningBalance.String(), string(acc.Currency))
	s.logger.InfoContext(ctx, "Account created", fields.ToSlice()...)
	s.publish(ctx, store.Change{Op: store.OpAccountCreated, AccountIDs: []string{acc.ID}})
	return acc, nil
}

// MutateBalance records a deposit or withdrawal and applies its delta to the
// account balance in the same transaction.
func (s *Service) MutateBalance(ctx context.Context, in MutationInput) (core.Transaction, error) {
	if err := core.ValidateAmount(in.Amount); err != nil {
		return core.Transaction{}, err
	}
	if err := s.check(in); err != nil {
		return core.Transaction{}, err
	}

	var out core.Transaction
	replayed := false
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if in.IdempotencyKey != "" {
			prev, ok, err := tx.FindByIdempotencyKey(ctx, in.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
			if ok {
				out, replayed = prev, true
				return nil
			}
		}

		acc, err := tx.GetAccount(ctx, in.AccountID)
		if err != nil {
			return err
		}

		record := core.Transaction{
			Kind:           in.Kind,
			Amount:         in.Amount,
			Currency:       acc.Currency,
			AccountID:      acc.ID,
			AccountName:    acc.Name,
			Note:           strings.TrimSpace(in.Note),
			IdempotencyKey: in.IdempotencyKey,
		}
		if in.CategoryID != "" {
			cat, err := tx.GetCategory(ctx, in.CategoryID)
			if err != nil {
				return err
			}
			if cat.Kind != in.Kind {
				return fmt.Errorf("%w: category %q is for %s transactions", core.ErrInvalidInput, cat.Name, cat.Kind)
			}
			record.CategoryID, record.CategoryName = cat.ID, cat.Name
		}

		next := acc.Balance.Add(record.Delta())
		if in.Kind == core.Withdraw && s.floor.Applies(acc.Type) && next.IsNegative() {
			return fmt.Errorf("%w: %s has %s %s", core.ErrInsufficientFunds, acc.Name, acc.Balance, acc.Currency)
		}
		if err := tx.UpdateBalance(ctx, acc.ID, next); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		out, err = tx.InsertTransaction(ctx, record)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	if replayed {
		s.logger.InfoContext(ctx, "Idempotent replay", log.FieldIdempotencyKey, in.IdempotencyKey, log.FieldTransactionID, out.ID)
		return out, nil
	}

	fields := log.NewFields().
		WithOperation(string(in.Kind)).
		WithMovement(out.AccountID, out.Amount.String(), string(out.Currency))
	fields[log.FieldTransactionID] = out.ID
	s.logger.InfoContext(ctx, "Balance mutated", fields.ToSlice()...)

	change := store.Change{Op: store.OpBalanceMutated, AccountIDs: []string{out.AccountID}, TransactionIDs: []string{out.ID}}
	if out.CategoryID != "" {
		change.CategoryIDs = []string{out.CategoryID}
	}
	s.publish(ctx, change)
	return out, nil
}

// Transfer moves amount from one account to another. Both balances and both
// ledger entries commit together; the source balance may not go below zero.
// The same numeric amount lands on the destination even when the currencies
// differ.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if in.FromID != "" && in.FromID == in.ToID {
		return TransferResult{}, core.ErrSameAccountTransfer
	}
	if err := core.ValidateAmount(in.Amount); err != nil {
		return TransferResult{}, err
	}
	if err := s.check(in); err != nil {
		return TransferResult{}, err
	}

	var res TransferResult
	replayed := false
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if in.IdempotencyKey != "" {
			out, okOut, err := tx.FindByIdempotencyKey(ctx, in.IdempotencyKey+":out")
			if err != nil {
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
			dep, okIn, err := tx.FindByIdempotencyKey(ctx, in.IdempotencyKey+":in")
			if err != nil {
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
			if okOut && okIn {
				res = TransferResult{Withdraw: out, Deposit: dep, CurrencyMismatch: out.Currency != dep.Currency}
				replayed = true
				return nil
			}
		}

		from, err := tx.GetAccount(ctx, in.FromID)
		if err != nil {
			return err
		}
		to, err := tx.GetAccount(ctx, in.ToID)
		if err != nil {
			return err
		}

		newFrom := from.Balance.Sub(in.Amount)
		if newFrom.IsNegative() {
			return fmt.Errorf("%w: %s has %s %s", core.ErrInsufficientFunds, from.Name, from.Balance, from.Currency)
		}
		newTo := to.Balance.Add(in.Amount)

		if err := tx.UpdateBalance(ctx, from.ID, newFrom); err != nil {
			return fmt.Errorf("update source balance: %w", err)
		}
		if err := tx.UpdateBalance(ctx, to.ID, newTo); err != nil {
			return fmt.Errorf("update destination balance: %w", err)
		}

		transferID := store.NewID()
		outKey, inKey := "", ""
		if in.IdempotencyKey != "" {
			outKey, inKey = in.IdempotencyKey+":out", in.IdempotencyKey+":in"
		}
		res.Withdraw, err = tx.InsertTransaction(ctx, core.Transaction{
			Kind:           core.Withdraw,
			Amount:         in.Amount,
			Currency:       from.Currency,
			AccountID:      from.ID,
			AccountName:    from.Name,
			Note:           transferNote("Transfer → "+to.Name, in.Note),
			TransferID:     transferID,
			IdempotencyKey: outKey,
		})
		if err != nil {
			return fmt.Errorf("insert withdraw leg: %w", err)
		}
		res.Deposit, err = tx.InsertTransaction(ctx, core.Transaction{
			Kind:           core.Deposit,
			Amount:         in.Amount,
			Currency:       to.Currency,
			AccountID:      to.ID,
			AccountName:    to.Name,
			Note:           transferNote("Transfer ← "+from.Name, in.Note),
			TransferID:     transferID,
			IdempotencyKey: inKey,
		})
		if err != nil {
			return fmt.Errorf("insert deposit leg: %w", err)
		}
		res.CurrencyMismatch = from.Currency != to.Currency
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	if replayed {
		s.logger.InfoContext(ctx, "Idempotent replay", log.FieldIdempotencyKey, in.IdempotencyKey, log.FieldTransferID, res.Withdraw.TransferID)
		return res, nil
	}

	if res.CurrencyMismatch {
		s.logger.WarnContext(ctx, "Transfer between different currencies moved the amount unconverted",
			log.FieldTransferID, res.Withdraw.TransferID,
			"from_currency", res.Withdraw.Currency,
			"to_currency", res.Deposit.Currency)
	}
	s.logger.InfoContext(ctx, "Transfer committed",
		log.FieldOperation, store.OpTransfer,
		log.FieldTransferID, res.Withdraw.TransferID,
		log.FieldAmount, in.Amount.String())

	s.publish(ctx, store.Change{
		Op:             store.OpTransfer,
		AccountIDs:     []string{res.Withdraw.AccountID, res.Deposit.AccountID},
		TransactionIDs: []string{res.Withdraw.ID, res.Deposit.ID},
	})
	return res, nil
}

// TransferLegs returns the withdraw and deposit legs of a transfer.
func (s *Service) TransferLegs(ctx context.Context, transferID string) (TransferResult, error) {
	legs, err := s.store.TransferLegs(ctx, transferID)
	if err != nil {
		return TransferResult{}, fmt.Errorf("load transfer legs: %w", err)
	}
	var res TransferResult
	found := 0
	for _, l := range legs {
		switch l.Kind {
		case core.Withdraw:
			res.Withdraw = l
			found++
		case core.Deposit:
			res.Deposit = l
			found++
		}
	}
	if found != 2 {
		return TransferResult{}, fmt.Errorf("%w: transfer %q not found", core.ErrInvalidInput, transferID)
	}
	res.CurrencyMismatch = res.Withdraw.Currency != res.Deposit.Currency
	return res, nil
}

func (s *Service) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", core.ErrInvalidInput, strings.ToLower(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	return nil
}

// publish runs after the commit, so a failure is logged and never returned.
func (s *Service) publish(ctx context.Context, c store.Change) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	if err := s.notifier.Publish(ctx, c); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish ledger change",
			log.FieldOperation, c.Op,
			log.FieldError, err)
	}
}

func transferNote(base, note string) string {
	if note = strings.TrimSpace(note); note != "" {
		return base + " • " + note
	}
	return base
}
