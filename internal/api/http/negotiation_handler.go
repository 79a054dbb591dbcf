package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/service"
)

type NegotiationHandler struct {
	negotiationSvc service.NegotiationService
}

func NewNegotiationHandler(negotiationSvc service.NegotiationService) *NegotiationHandler {
	return &NegotiationHandler{negotiationSvc: negotiationSvc}
}

type createNegotiationBody struct {
	OrderID      string              `json:"order_id"`
	VendorID     string              `json:"vendor_id"`
	InitialOffer decimal.Decimal     `json:"initial_offer"`
	Currency     string              `json:"currency,omitempty"`
	QuoteDetails domain.QuoteDetails `json:"quote_details,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
}

func (h *NegotiationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body createNegotiationBody
	if !decodeBody(w, r, &body) {
		return
	}
	n, err := h.negotiationSvc.CreateNegotiation(r.Context(), claims.TenantID, service.CreateNegotiationInput{
		OrderID:      body.OrderID,
		VendorID:     body.VendorID,
		InitialOffer: body.InitialOffer,
		Currency:     body.Currency,
		QuoteDetails: body.QuoteDetails,
		ExpiresAt:    body.ExpiresAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *NegotiationHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	n, err := h.negotiationSvc.GetNegotiation(r.Context(), claims.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NegotiationHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	orderID := r.URL.Query().Get("order_id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "order_id is required", Code: "validation_error"})
		return
	}
	list, err := h.negotiationSvc.ListByOrder(r.Context(), claims.TenantID, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"negotiations": list})
}

func (h *NegotiationHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	n, err := h.negotiationSvc.SendNegotiation(r.Context(), claims.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

type counterOfferBody struct {
	Actor         string          `json:"actor"`
	ExpectedRound int32           `json:"expected_round"`
	Amount        decimal.Decimal `json:"amount"`
	Notes         string          `json:"notes,omitempty"`
}

func (h *NegotiationHandler) CounterOffer(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body counterOfferBody
	if !decodeBody(w, r, &body) {
		return
	}
	n, err := h.negotiationSvc.SubmitCounterOffer(r.Context(), claims.TenantID, mux.Vars(r)["id"], service.CounterOfferInput{
		Actor:         domain.NegotiationParty(body.Actor),
		ExpectedRound: body.ExpectedRound,
		Amount:        body.Amount,
		Notes:         body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

type closeNegotiationBody struct {
	Actor         string `json:"actor"`
	ExpectedRound int32  `json:"expected_round"`
	Notes         string `json:"notes,omitempty"`
}

func (h *NegotiationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body closeNegotiationBody
	if !decodeBody(w, r, &body) {
		return
	}
	n, err := h.negotiationSvc.AcceptOffer(r.Context(), claims.TenantID, mux.Vars(r)["id"], body.ExpectedRound, domain.NegotiationParty(body.Actor), body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NegotiationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body closeNegotiationBody
	if !decodeBody(w, r, &body) {
		return
	}
	n, err := h.negotiationSvc.RejectOffer(r.Context(), claims.TenantID, mux.Vars(r)["id"], body.ExpectedRound, domain.NegotiationParty(body.Actor), body.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
