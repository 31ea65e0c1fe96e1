package http

import (
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/budget"
	"ledger/internal/core"
	"ledger/internal/currency"
	"ledger/internal/ledger"
	"ledger/internal/services"
)

// Requests. Amounts are decimal strings so no precision is lost in transit.
type (
	CreateAccountRequest struct {
		Name           string `json:"name" validate:"required"`
		Type           string `json:"type" validate:"required"`
		Currency       string `json:"currency" validate:"required,len=3"`
		InitialBalance string `json:"initial_balance"`
	}

	MutationRequest struct {
		Amount         string `json:"amount" validate:"required"`
		CategoryID     string `json:"category_id"`
		Note           string `json:"note" validate:"max=500"`
		IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
	}

	TransferRequest struct {
		FromAccountID  string `json:"from_account_id" validate:"required"`
		ToAccountID    string `json:"to_account_id" validate:"required"`
		Amount         string `json:"amount" validate:"required"`
		Note           string `json:"note" validate:"max=500"`
		IdempotencyKey string `json:"idempotency_key" validate:"max=120"`
	}

	CreateCategoryRequest struct {
		Name string `json:"name" validate:"required,max=80"`
		Kind string `json:"kind" validate:"required,oneof=deposit withdraw"`
	}

	CreateBudgetRequest struct {
		Name       string `json:"name" validate:"required,max=80"`
		Limit      string `json:"limit" validate:"required"`
		Period     string `json:"period" validate:"omitempty,oneof=monthly yearly"`
		CategoryID string `json:"category_id"`
	}

	CurrencySettingsRequest struct {
		Base  string            `json:"base" validate:"required,len=3"`
		Rates map[string]string `json:"rates" validate:"required,min=1"`
	}
)

// Responses.
type (
	AccountResponse struct {
		ID               string          `json:"id"`
		Name             string          `json:"name"`
		Type             string          `json:"type"`
		Currency         string          `json:"currency"`
		Balance          decimal.Decimal `json:"balance"`
		BalanceFormatted string          `json:"balance_formatted"`
		OpeningBalance   decimal.Decimal `json:"opening_balance"`
		CreatedAt        time.Time       `json:"created_at"`
	}

	TransactionResponse struct {
		ID              string          `json:"id"`
		Kind            string          `json:"kind"`
		Amount          decimal.Decimal `json:"amount"`
		AmountFormatted string          `json:"amount_formatted"`
		Currency        string          `json:"currency"`
		AccountID       string          `json:"account_id"`
		AccountName     string          `json:"account_name"`
		CategoryID      string          `json:"category_id,omitempty"`
		CategoryName    string          `json:"category_name,omitempty"`
		Note            string          `json:"note,omitempty"`
		TransferID      string          `json:"transfer_id,omitempty"`
		IdempotencyKey  string          `json:"idempotency_key,omitempty"`
		CreatedAt       time.Time       `json:"created_at"`
	}

	TransferResponse struct {
		TransferID       string              `json:"transfer_id"`
		Withdraw         TransactionResponse `json:"withdraw"`
		Deposit          TransactionResponse `json:"deposit"`
		CurrencyMismatch bool                `json:"currency_mismatch"`
		Warning          string              `json:"warning,omitempty"`
	}

	CategoryResponse struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	}

	BudgetResponse struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Limit      decimal.Decimal `json:"limit"`
		Period     string          `json:"period"`
		CategoryID string          `json:"category_id,omitempty"`
		CreatedAt  time.Time       `json:"created_at"`
	}

	BudgetStatusResponse struct {
		BudgetResponse
		Spent      decimal.Decimal `json:"spent"`
		Remaining  decimal.Decimal `json:"remaining"`
		Progress   decimal.Decimal `json:"progress"`
		OverBudget bool            `json:"over_budget"`
		Start      time.Time       `json:"period_start"`
		End        time.Time       `json:"period_end"`
	}

	CurrencySettingsResponse struct {
		Base  string                     `json:"base"`
		Rates map[string]decimal.Decimal `json:"rates"`
		// PerBase is how much of each currency one unit of the base buys.
		PerBase   map[string]decimal.Decimal `json:"per_base"`
		Supported []string                   `json:"supported"`
	}
)

func toAccountResponse(a core.Account) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		Name:             a.Name,
		Type:             string(a.Type),
		Currency:         string(a.Currency),
		Balance:          a.Balance,
		BalanceFormatted: currency.Format(a.Balance, a.Currency),
		OpeningBalance:   a.OpeningBalance,
		CreatedAt:        a.CreatedAt,
	}
}

func toTransactionResponse(t core.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:              t.ID,
		Kind:            string(t.Kind),
		Amount:          t.Amount,
		AmountFormatted: currency.Format(t.Amount, t.Currency),
		Currency:        string(t.Currency),
		AccountID:       t.AccountID,
		AccountName:     t.AccountName,
		CategoryID:      t.CategoryID,
		CategoryName:    t.CategoryName,
		Note:            t.Note,
		TransferID:      t.TransferID,
		IdempotencyKey:  t.IdempotencyKey,
		CreatedAt:       t.CreatedAt,
	}
}

func toTransferResponse(r ledger.TransferResult) TransferResponse {
	out := TransferResponse{
		TransferID:       r.Withdraw.TransferID,
		Withdraw:         toTransactionResponse(r.Withdraw),
		Deposit:          toTransactionResponse(r.Deposit),
		CurrencyMismatch: r.CurrencyMismatch,
	}
	if r.CurrencyMismatch {
		out.Warning = "accounts hold different currencies: the amount was moved without conversion"
	}
	return out
}

func toCategoryResponse(c core.Category) CategoryResponse {
	return CategoryResponse{ID: c.ID, Name: c.Name, Kind: string(c.Kind)}
}

func toBudgetResponse(b core.Budget) BudgetResponse {
	return BudgetResponse{
		ID:         b.ID,
		Name:       b.Name,
		Limit:      b.Limit,
		Period:     string(b.Period),
		CategoryID: b.CategoryID,
		CreatedAt:  b.CreatedAt,
	}
}

func toBudgetStatusResponse(s budget.Status) BudgetStatusResponse {
	return BudgetStatusResponse{
		BudgetResponse: toBudgetResponse(s.Budget),
		Spent:          s.Spent,
		Remaining:      s.Remaining,
		Progress:       s.Progress,
		OverBudget:     s.OverBudget,
		Start:          s.Start,
		End:            s.End,
	}
}

func toCurrencySettingsResponse(s core.CurrencySettings) CurrencySettingsResponse {
	out := CurrencySettingsResponse{
		Base:    string(s.Base),
		Rates:   make(map[string]decimal.Decimal, len(s.Rates)),
		PerBase: make(map[string]decimal.Decimal, len(s.Rates)),
	}
	for code, rate := range s.Rates {
		out.Rates[string(code)] = rate
		if r, ok := currency.RateOf(code, s); ok {
			out.PerBase[string(code)] = r
		}
	}
	for _, c := range core.SupportedCurrencies() {
		out.Supported = append(out.Supported, string(c))
	}
	return out
}

type (
	SummaryResponse struct {
		Base    string          `json:"base"`
		Period  string          `json:"period"`
		Start   *time.Time      `json:"start,omitempty"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
		Net     decimal.Decimal `json:"net"`
		Count   int             `json:"count"`
	}

	CategoryShareResponse struct {
		Name  string          `json:"name"`
		Total decimal.Decimal `json:"total"`
		Share decimal.Decimal `json:"share"`
	}

	CategoryReportResponse struct {
		Base       string                  `json:"base"`
		Kind       string                  `json:"kind"`
		Total      decimal.Decimal         `json:"total"`
		Categories []CategoryShareResponse `json:"categories"`
	}

	AccountTotalResponse struct {
		Name    string          `json:"name"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
	}

	TrendPointResponse struct {
		Label   string          `json:"label"`
		Income  decimal.Decimal `json:"income"`
		Expense decimal.Decimal `json:"expense"`
	}

	CurrencyBalanceResponse struct {
		Currency string          `json:"currency"`
		Total    decimal.Decimal `json:"total"`
	}

	BalanceReportResponse struct {
		Base          string                    `json:"base"`
		Total         decimal.Decimal           `json:"total"`
		ByCurrency    []CurrencyBalanceResponse `json:"by_currency"`
		Unconvertible []string                  `json:"unconvertible,omitempty"`
	}
)

func toSummaryResponse(r services.SummaryReport) SummaryResponse {
	out := SummaryResponse{
		Base:    string(r.Base),
		Period:  string(r.Period),
		Income:  r.Summary.Income,
		Expense: r.Summary.Expense,
		Net:     r.Summary.Net,
		Count:   r.Summary.Count,
	}
	if !r.Start.IsZero() {
		start := r.Start
		out.Start = &start
	}
	return out
}

func toCategoryReportResponse(r services.CategoryReport) CategoryReportResponse {
	out := CategoryReportResponse{
		Base:       string(r.Base),
		Kind:       string(r.Kind),
		Total:      r.Total,
		Categories: make([]CategoryShareResponse, 0, len(r.Categories)),
	}
	for _, c := range r.Categories {
		out.Categories = append(out.Categories, CategoryShareResponse{Name: c.Name, Total: c.Total, Share: c.Share})
	}
	return out
}

func toAccountTotals(r services.AccountReport) []AccountTotalResponse {
	out := make([]AccountTotalResponse, 0, len(r.Accounts))
	for _, a := range r.Accounts {
		out = append(out, AccountTotalResponse{Name: a.Name, Income: a.Income, Expense: a.Expense})
	}
	return out
}

func toTrendPoints(r services.TrendReport) []TrendPointResponse {
	out := make([]TrendPointResponse, 0, len(r.Points))
	for _, p := range r.Points {
		out = append(out, TrendPointResponse{Label: p.Label, Income: p.Income, Expense: p.Expense})
	}
	return out
}

func toBalanceReportResponse(r services.BalanceReport) BalanceReportResponse {
	out := BalanceReportResponse{
		Base:       string(r.Base),
		Total:      r.Total,
		ByCurrency: make([]CurrencyBalanceResponse, 0, len(r.ByCurrency)),
	}
	for _, b := range r.ByCurrency {
		out.ByCurrency = append(out.ByCurrency, CurrencyBalanceResponse{Currency: string(b.Currency), Total: b.Total})
	}
	for _, c := range r.Unconvertible {
		out.Unconvertible = append(out.Unconvertible, string(c))
	}
	return out
}
