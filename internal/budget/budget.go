// Package budget evaluates spending limits against the transaction history.
// Spent amounts are never stored; they are recomputed from transactions on
// every call.
package budget

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/aggregate"
	"ledger/internal/core"
)

var one = decimal.NewFromInt(1)

// Status is the evaluated state of one budget at a point in time.
type Status struct {
	Budget     core.Budget
	Spent      decimal.Decimal
	Remaining  decimal.Decimal // negative when over budget
	Progress   decimal.Decimal // clamped to [0, 1]
	OverBudget bool
	Start      time.Time
	End        time.Time
}

// ComputeSpent sums the unconverted withdraw amounts in the budget's current
// period window, restricted to the budget's category when it has one.
func ComputeSpent(b core.Budget, txs []core.Transaction, now time.Time) decimal.Decimal {
	spent := decimal.Zero
	for _, t := range aggregate.FilterByPeriod(txs, b.Period.Window(), now) {
		if t.Kind != core.Withdraw {
			continue
		}
		if b.CategoryID != "" && t.CategoryID != b.CategoryID {
			continue
		}
		spent = spent.Add(t.Amount)
	}
	return spent
}

// Progress returns spent/limit clamped to [0, 1]. A non-positive limit is
// fully used as soon as anything is spent.
func Progress(spent, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsPositive() {
		if spent.IsPositive() {
			return one
		}
		return decimal.Zero
	}
	p := spent.Div(limit)
	switch {
	case p.GreaterThan(one):
		return one
	case p.IsNegative():
		return decimal.Zero
	}
	return p
}

// IsOverBudget reports the true overage state, which Progress hides.
func IsOverBudget(spent, limit decimal.Decimal) bool {
	return spent.GreaterThan(limit)
}

func Evaluate(b core.Budget, txs []core.Transaction, now time.Time) Status {
	spent := ComputeSpent(b, txs, now)
	start, end, _ := aggregate.Window(b.Period.Window(), now)
	return Status{
		Budget:     b,
		Spent:      spent,
		Remaining:  b.Limit.Sub(spent),
		Progress:   Progress(spent, b.Limit),
		OverBudget: IsOverBudget(spent, b.Limit),
		Start:      start,
		End:        end,
	}
}

// EvaluateAll evaluates every budget, over budget entries first and then by
// name.
func EvaluateAll(budgets []core.Budget, txs []core.Transaction, now time.Time) []Status {
	out := make([]Status, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, Evaluate(b, txs, now))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OverBudget != out[j].OverBudget {
			return out[i].OverBudget
		}
		return out[i].Budget.Name < out[j].Budget.Name
	})
	return out
}

// Affected returns the budgets whose spent amount may change when
// transactions in the given categories change. uncategorized reports that an
// uncategorized withdraw was involved, which only affects unfiltered budgets.
func Affected(budgets []core.Budget, categoryIDs []string, uncategorized bool) []core.Budget {
	touched := make(map[string]struct{}, len(categoryIDs))
	for _, id := range categoryIDs {
		touched[id] = struct{}{}
	}
	var out []core.Budget
	for _, b := range budgets {
		if b.CategoryID == "" {
			if uncategorized || len(categoryIDs) > 0 {
				out = append(out, b)
			}
			continue
		}
		if _, ok := touched[b.CategoryID]; ok {
			out = append(out, b)
		}
	}
	return out
}
