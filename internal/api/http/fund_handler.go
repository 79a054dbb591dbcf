package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/service"
)

type FundHandler struct {
	fundSvc service.FundService
}

func NewFundHandler(fundSvc service.FundService) *FundHandler {
	return &FundHandler{fundSvc: fundSvc}
}

type contributionBody struct {
	Amount      decimal.Decimal `json:"amount"`
	OrderID     *string         `json:"order_id,omitempty"`
	Description string          `json:"description,omitempty"`
}

func (h *FundHandler) Contribute(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body contributionBody
	if !decodeBody(w, r, &body) {
		return
	}

	// A contribution naming an order books the configured rate of the
	// order total; an explicit amount overrides it.
	if body.OrderID != nil && body.Amount.IsZero() {
		tx, err := h.fundSvc.ContributeFromOrder(r.Context(), claims.TenantID, *body.OrderID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
		return
	}

	tx, err := h.fundSvc.Contribute(r.Context(), claims.TenantID, service.ContributionInput{
		Amount:      body.Amount,
		OrderID:     body.OrderID,
		Description: body.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *FundHandler) Balance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	balance, err := h.fundSvc.CurrentBalance(r.Context(), claims.TenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": claims.TenantID, "balance": balance})
}

func (h *FundHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	page, pageSize := pagination(r)
	txs, total, err := h.fundSvc.ListTransactions(r.Context(), claims.TenantID, r.URL.Query().Get("type"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs, "total": total})
}

func (h *FundHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	now := time.Now()
	from := now.AddDate(0, -1, 0)
	to := now
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from date", Code: "validation_error"})
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to date", Code: "validation_error"})
			return
		}
		to = parsed
	}

	stats, err := h.fundSvc.Statistics(r.Context(), claims.TenantID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *FundHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if err := h.fundSvc.VerifyChain(r.Context(), claims.TenantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": claims.TenantID, "chain": "verified"})
}

// ClearHold lifts an integrity hold after finance has reconciled the
// chain. Executive authority only.
func (h *FundHandler) ClearHold(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if claims.ApprovalLevel < domain.ApprovalLevelExecutive {
		writeError(w, domain.ErrUnauthorized)
		return
	}
	if err := h.fundSvc.ClearHold(r.Context(), claims.TenantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": claims.TenantID, "hold": "cleared"})
}
