package http

import (
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
)

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeJSON[CreateAccountRequest](w, r, s.validate)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	initial, err := core.ParseBalance(req.InitialBalance)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	acc, err := s.deps.Ledger.CreateAccount(r.Context(), ledger.CreateAccountInput{
		Name:           req.Name,
		Type:           core.AccountType(strings.ToLower(strings.TrimSpace(req.Type))),
		Currency:       core.Currency(strings.ToUpper(strings.TrimSpace(req.Currency))),
		InitialBalance: initial,
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/accounts/"+acc.ID).
		Data(toAccountResponse(acc)).
		Write(w)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.deps.Reader.ListAccounts(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.deps.Reader.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toAccountResponse(acc))
}

// handleMutation serves both /deposit and /withdraw; the kind is the last
// path segment.
func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	kind := core.Deposit
	if strings.HasSuffix(r.URL.Path, "/withdraw") {
		kind = core.Withdraw
	}

	req, err := DecodeJSON[MutationRequest](w, r, s.validate)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	tx, err := s.deps.Ledger.MutateBalance(r.Context(), ledger.MutationInput{
		AccountID:      r.PathValue("id"),
		Kind:           kind,
		Amount:         amount,
		CategoryID:     req.CategoryID,
		Note:           req.Note,
		IdempotencyKey: firstNonEmpty(req.IdempotencyKey, r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	req, err := DecodeJSON[TransferRequest](w, r, s.validate)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if req.FromAccountID == req.ToAccountID {
		WriteError(w, r, core.ErrSameAccountTransfer)
		return
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := s.deps.Ledger.Transfer(r.Context(), ledger.TransferInput{
		FromID:         req.FromAccountID,
		ToID:           req.ToAccountID,
		Amount:         amount,
		Note:           req.Note,
		IdempotencyKey: firstNonEmpty(req.IdempotencyKey, r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if res.CurrencyMismatch {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Transfer between different currencies",
			log.FieldTransferID, res.Withdraw.TransferID,
			"from_currency", res.Withdraw.Currency,
			"to_currency", res.Deposit.Currency)
	}
	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transfers/"+res.Withdraw.TransferID).
		Data(toTransferResponse(res)).
		Write(w)
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Ledger.TransferLegs(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toTransferResponse(res))
}

// handleListTransactions lists the period's transactions, newest first,
// optionally restricted with ?account= and ?kind=.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params, err := ParsePeriodParams(q, s.now())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	kind, err := ParseKind(q, "")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	txs, err := s.deps.Reports.Transactions(r.Context(), params.Period, params.Anchor)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	accountID := q.Get("account")
	out := make([]TransactionResponse, 0, len(txs))
	for _, t := range txs {
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		if kind != "" && t.Kind != kind {
			continue
		}
		out = append(out, toTransactionResponse(t))
	}
	WriteJSON(w, http.StatusOK, out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
