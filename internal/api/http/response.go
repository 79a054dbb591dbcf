package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Retry bool   `json:"retry,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("failed to encode response", "error", err)
		}
	}
}

// writeError maps domain errors to the API's status contract.
func writeError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	var calcErr *domain.CalculationError

	switch {
	case errors.As(err, &calcErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "calculation_error"})
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation_error"})
	case errors.Is(err, domain.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "concurrent_modification", Retry: true})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, domain.ErrNegotiationClosed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "negotiation_closed"})
	case errors.Is(err, domain.ErrFundOnHold):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "fund_on_hold"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: "forbidden"})
	case errors.Is(err, domain.ErrLedgerIntegrity):
		logger.Error("ledger integrity failure surfaced to API", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: "ledger_integrity"})
	default:
		logger.Error("unhandled error in API", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_json"})
		return false
	}
	return true
}
