package http

import (
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/services"
)

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeJSON[CreateCategoryRequest](w, r, s.validate)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	c, err := s.deps.Categories.CreateCategory(r.Context(), req.Name, core.Kind(req.Kind))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toCategoryResponse(c))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	kind, err := ParseKind(r.URL.Query(), "")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	cats, err := s.deps.Categories.ListCategories(r.Context(), kind)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out := make([]CategoryResponse, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryResponse(c))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeJSON[CreateBudgetRequest](w, r, s.validate)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	limit, err := core.ParseBalance(req.Limit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	b, err := s.deps.Budgets.CreateBudget(r.Context(), services.CreateBudgetInput{
		Name:       req.Name,
		Limit:      limit,
		Period:     core.BudgetPeriod(req.Period),
		CategoryID: req.CategoryID,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toBudgetResponse(b))
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.deps.Budgets.ListBudgets(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out := make([]BudgetResponse, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, toBudgetResponse(b))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleBudgetStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.deps.Budgets.Statuses(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out := make([]BudgetStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, toBudgetStatusResponse(st))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cs, err := s.deps.Settings.CurrencySettings(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCurrencySettingsResponse(cs))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeJSON[CurrencySettingsRequest](w, r, s.validate)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	rates, err := ParseRates(req.Rates)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	cs := core.CurrencySettings{
		Base:  core.Currency(strings.ToUpper(strings.TrimSpace(req.Base))),
		Rates: rates,
	}
	if err := s.deps.Settings.Save(r.Context(), cs); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCurrencySettingsResponse(cs))
}
