// Package worker reacts to ledger change notifications outside the request
// path: it drops stale reports and re-evaluates the budgets a change touches.
package worker

import (
	"context"
	"fmt"

	"ledger/internal/budget"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/store"
)

// Invalidator drops cached reports.
type Invalidator interface {
	Invalidate()
}

// BudgetEvaluator is the part of services.BudgetService the worker uses.
type BudgetEvaluator interface {
	Statuses(ctx context.Context) ([]budget.Status, error)
	StatusesFor(ctx context.Context, categoryIDs []string, uncategorized bool) ([]budget.Status, error)
}

// ChangeWorker handles one ledger change at a time.
type ChangeWorker struct {
	reports Invalidator
	budgets BudgetEvaluator
	logger  *log.Logger
}

// NewChangeWorker builds a worker. reports may be nil when the process keeps
// no report cache.
func NewChangeWorker(reports Invalidator, budgets BudgetEvaluator, logger *log.Logger) *ChangeWorker {
	if logger == nil {
		logger = log.Default()
	}
	return &ChangeWorker{reports: reports, budgets: budgets, logger: logger.WithComponent(log.ComponentWorker)}
}

// Handle is a notify.Handler. An error makes the broker redeliver the message.
func (w *ChangeWorker) Handle(ctx context.Context, msg *notify.LedgerChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing ledger change",
		log.FieldOperation, msg.Op,
		"accounts", len(msg.AccountIDs),
		"transactions", len(msg.TransactionIDs))

	if w.reports != nil {
		w.reports.Invalidate()
	}

	var (
		statuses []budget.Status
		err      error
	)
	switch msg.Op {
	case store.OpSettingsSaved:
		statuses, err = w.budgets.Statuses(ctx)
	case store.OpBalanceMutated, store.OpTransfer:
		// Budgets without a category count every withdraw.
		statuses, err = w.budgets.StatusesFor(ctx, msg.CategoryIDs, true)
	case store.OpBudgetAdded:
		statuses, err = w.budgets.StatusesFor(ctx, msg.CategoryIDs, len(msg.CategoryIDs) == 0)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("evaluate budgets: %w", err)
	}
	w.report(ctx, statuses)
	return nil
}

// Evaluate re-checks every budget. It backs the periodic monitor.
func (w *ChangeWorker) Evaluate(ctx context.Context) error {
	statuses, err := w.budgets.Statuses(ctx)
	if err != nil {
		return fmt.Errorf("evaluate budgets: %w", err)
	}
	w.report(ctx, statuses)
	return nil
}

func (w *ChangeWorker) report(ctx context.Context, statuses []budget.Status) {
	over := 0
	for _, st := range statuses {
		if !st.OverBudget {
			continue
		}
		over++
		w.logger.WarnContext(ctx, "Budget exceeded",
			log.FieldBudgetID, st.Budget.ID,
			"budget", st.Budget.Name,
			"spent", st.Spent.String(),
			"limit", st.Budget.Limit.String(),
			log.FieldPeriod, st.Budget.Period)
	}
	w.logger.DebugContext(ctx, "Budgets evaluated", "count", len(statuses), "over_budget", over)
}
