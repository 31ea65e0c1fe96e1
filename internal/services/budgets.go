package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/budget"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/store"
)

type CreateBudgetInput struct {
	Name       string
	Limit      decimal.Decimal
	Period     core.BudgetPeriod
	CategoryID string
}

// BudgetService stores budget definitions and evaluates them against the
// current transaction set.
type BudgetService struct {
	store    store.Store
	notifier store.Notifier
	now      func() time.Time
	logger   *log.Logger
}

func NewBudgetService(st store.Store, notifier store.Notifier, logger *log.Logger) *BudgetService {
	if notifier == nil {
		notifier = store.NopNotifier{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &BudgetService{store: st, notifier: notifier, now: time.Now, logger: logger.WithComponent(log.ComponentBudget)}
}

func (s *BudgetService) CreateBudget(ctx context.Context, in CreateBudgetInput) (core.Budget, error) {
	if in.Period == "" {
		in.Period = core.Monthly
	}
	b := core.Budget{
		Name:       strings.TrimSpace(in.Name),
		Limit:      in.Limit,
		Period:     in.Period,
		CategoryID: in.CategoryID,
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	b, err := s.store.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	s.logger.InfoContext(ctx, "Budget created", log.FieldBudgetID, b.ID, log.FieldPeriod, b.Period)

	change := store.Change{Op: store.OpBudgetAdded}
	if b.CategoryID != "" {
		change.CategoryIDs = []string{b.CategoryID}
	}
	if err := s.notifier.Publish(ctx, change); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish budget change", log.FieldError, err)
	}
	return b, nil
}

func (s *BudgetService) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	budgets, err := s.store.ListBudgets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

// Statuses evaluates every budget at now.
func (s *BudgetService) Statuses(ctx context.Context) ([]budget.Status, error) {
	budgets, err := s.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, budgets)
}

// StatusesFor evaluates only the budgets a change in the given categories can
// affect.
func (s *BudgetService) StatusesFor(ctx context.Context, categoryIDs []string, uncategorized bool) ([]budget.Status, error) {
	budgets, err := s.ListBudgets(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, budget.Affected(budgets, categoryIDs, uncategorized))
}

func (s *BudgetService) evaluate(ctx context.Context, budgets []core.Budget) ([]budget.Status, error) {
	if len(budgets) == 0 {
		return []budget.Status{}, nil
	}
	txs, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return budget.EvaluateAll(budgets, txs, s.now()), nil
}
