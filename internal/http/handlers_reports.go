package http

import (
	"net/http"

	"ledger/internal/core"
)

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePeriodParams(r.URL.Query(), s.now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	report, err := s.deps.Reports.Summary(r.Context(), params.Period, params.Anchor)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toSummaryResponse(report))
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := ParsePeriodParams(q, s.now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	kind, err := ParseKind(q, core.Withdraw)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	report, err := s.deps.Reports.Categories(r.Context(), params.Period, params.Anchor, kind)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toCategoryReportResponse(report))
}

func (s *Server) handleAccountReport(w http.ResponseWriter, r *http.Request) {
	params, err := ParsePeriodParams(r.URL.Query(), s.now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	report, err := s.deps.Reports.Accounts(r.Context(), params.Period, params.Anchor)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"base":     report.Base,
		"accounts": toAccountTotals(report),
	})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	months, err := ParseMonths(r.URL.Query())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	report, err := s.deps.Reports.Trend(r.Context(), months)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"base":   report.Base,
		"points": toTrendPoints(report),
	})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.Balances(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toBalanceReportResponse(report))
}
