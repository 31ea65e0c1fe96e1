package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/currency"
)

// OtherCategory labels transactions without a category.
const OtherCategory = "Other"

type (
	// Totals are raw sums in whatever currency the transactions share.
	Totals struct {
		Deposit  decimal.Decimal
		Withdraw decimal.Decimal
	}

	// NormalizedTotals are expressed in the settings' base currency.
	NormalizedTotals struct {
		Income  decimal.Decimal
		Expense decimal.Decimal
	}

	Summary struct {
		Income  decimal.Decimal
		Expense decimal.Decimal
		Net     decimal.Decimal
		Count   int
	}

	CategoryTotal struct {
		Name  string
		Total decimal.Decimal
	}

	AccountTotal struct {
		Name    string
		Income  decimal.Decimal
		Expense decimal.Decimal
	}

	TrendPoint struct {
		Label   string // YYYY-MM
		Start   time.Time
		Income  decimal.Decimal
		Expense decimal.Decimal
	}

	CurrencyBalance struct {
		Currency core.Currency
		Total    decimal.Decimal
	}
)

func (n NormalizedTotals) Net() decimal.Decimal {
	return n.Income.Sub(n.Expense)
}

// SumByKind adds up amounts per kind without any conversion.
func SumByKind(txs []core.Transaction) Totals {
	var out Totals
	for _, t := range txs {
		switch t.Kind {
		case core.Deposit:
			out.Deposit = out.Deposit.Add(t.Amount)
		case core.Withdraw:
			out.Withdraw = out.Withdraw.Add(t.Amount)
		}
	}
	return out
}

// SumByKindNormalized converts each amount to the base currency before summing.
func SumByKindNormalized(txs []core.Transaction, settings core.CurrencySettings) NormalizedTotals {
	var out NormalizedTotals
	for _, t := range txs {
		v := currency.ToBase(t.Amount, t.Currency, settings)
		switch t.Kind {
		case core.Deposit:
			out.Income = out.Income.Add(v)
		case core.Withdraw:
			out.Expense = out.Expense.Add(v)
		}
	}
	return out
}

func Summarize(txs []core.Transaction, settings core.CurrencySettings) Summary {
	n := SumByKindNormalized(txs, settings)
	return Summary{Income: n.Income, Expense: n.Expense, Net: n.Net(), Count: len(txs)}
}

// GroupByCategory buckets transactions of the given kind by category name,
// sorted by total descending and then by name.
func GroupByCategory(txs []core.Transaction, kind core.Kind, settings core.CurrencySettings) []CategoryTotal {
	sums := map[string]decimal.Decimal{}
	for _, t := range txs {
		if t.Kind != kind {
			continue
		}
		name := t.CategoryName
		if name == "" {
			name = OtherCategory
		}
		sums[name] = sums[name].Add(currency.ToBase(t.Amount, t.Currency, settings))
	}

	out := make([]CategoryTotal, 0, len(sums))
	for name, total := range sums {
		out = append(out, CategoryTotal{Name: name, Total: total})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// GroupByAccount buckets normalized income and expense by account name.
func GroupByAccount(txs []core.Transaction, settings core.CurrencySettings) []AccountTotal {
	idx := map[string]int{}
	var out []AccountTotal
	for _, t := range txs {
		i, ok := idx[t.AccountName]
		if !ok {
			i = len(out)
			idx[t.AccountName] = i
			out = append(out, AccountTotal{Name: t.AccountName})
		}
		v := currency.ToBase(t.Amount, t.Currency, settings)
		switch t.Kind {
		case core.Deposit:
			out[i].Income = out[i].Income.Add(v)
		case core.Withdraw:
			out[i].Expense = out[i].Expense.Add(v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if out == nil {
		out = []AccountTotal{}
	}
	return out
}

// MonthlyTrend returns monthCount consecutive calendar months ending with the
// month containing now, oldest first. Months are computed in now's location.
func MonthlyTrend(txs []core.Transaction, settings core.CurrencySettings, monthCount int, now time.Time) []TrendPoint {
	if monthCount <= 0 {
		return []TrendPoint{}
	}
	current, _, _ := Window(core.PeriodMonth, now)
	first := current.AddDate(0, -(monthCount - 1), 0)

	points := make([]TrendPoint, monthCount)
	for i := range points {
		start := first.AddDate(0, i, 0)
		points[i] = TrendPoint{Label: start.Format("2006-01"), Start: start}
	}
	end := current.AddDate(0, 1, 0)

	for _, t := range txs {
		if !within(t.CreatedAt, first, end) {
			continue
		}
		local := t.CreatedAt.In(now.Location())
		i := (local.Year()-first.Year())*12 + int(local.Month()-first.Month())
		if i < 0 || i >= monthCount {
			continue
		}
		v := currency.ToBase(t.Amount, t.Currency, settings)
		switch t.Kind {
		case core.Deposit:
			points[i].Income = points[i].Income.Add(v)
		case core.Withdraw:
			points[i].Expense = points[i].Expense.Add(v)
		}
	}
	return points
}

// PercentageOfTotal returns part/whole as a ratio, or zero when whole is zero.
func PercentageOfTotal(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole)
}

// BalancesByCurrency sums account balances per currency, ordered by code.
func BalancesByCurrency(accounts []core.Account) []CurrencyBalance {
	sums := map[core.Currency]decimal.Decimal{}
	for _, a := range accounts {
		sums[a.Currency] = sums[a.Currency].Add(a.Balance)
	}
	out := make([]CurrencyBalance, 0, len(sums))
	for c, total := range sums {
		out = append(out, CurrencyBalance{Currency: c, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// TotalBalance sums every account balance in the base currency.
func TotalBalance(accounts []core.Account, settings core.CurrencySettings) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(currency.ToBase(a.Balance, a.Currency, settings))
	}
	return total
}
