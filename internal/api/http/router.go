package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"xenial-settlement/internal/security"
)

// NewRouter wires every API route behind the bearer-token middleware.
// Only the health endpoint is unauthenticated.
func NewRouter(
	tokens security.TokenManager,
	refunds *RefundHandler,
	fund *FundHandler,
	negotiations *NegotiationHandler,
	notifications *NotificationHandler,
) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(AuthMiddleware(tokens))

	api.HandleFunc("/refund-requests", refunds.Submit).Methods(http.MethodPost)
	api.HandleFunc("/refund-requests", refunds.List).Methods(http.MethodGet)
	api.HandleFunc("/refund-requests/{id}", refunds.Get).Methods(http.MethodGet)
	api.HandleFunc("/refund-requests/{id}/recalculate", refunds.Recalculate).Methods(http.MethodPost)
	api.HandleFunc("/refund-requests/{id}/investigate", refunds.Investigate).Methods(http.MethodPost)
	api.HandleFunc("/refund-requests/{id}/ready-for-finance", refunds.ReadyForFinance).Methods(http.MethodPost)
	api.HandleFunc("/refund-requests/{id}/decisions", refunds.RecordDecision).Methods(http.MethodPost)
	api.HandleFunc("/refund-requests/{id}/resubmit-info", refunds.ResubmitInfo).Methods(http.MethodPost)
	api.HandleFunc("/refund-requests/{id}/process", refunds.Process).Methods(http.MethodPost)
	api.HandleFunc("/refund-requests/{id}/complete", refunds.Complete).Methods(http.MethodPost)

	api.HandleFunc("/insurance-fund/contributions", fund.Contribute).Methods(http.MethodPost)
	api.HandleFunc("/insurance-fund/balance", fund.Balance).Methods(http.MethodGet)
	api.HandleFunc("/insurance-fund/transactions", fund.Transactions).Methods(http.MethodGet)
	api.HandleFunc("/insurance-fund/statistics", fund.Statistics).Methods(http.MethodGet)
	api.HandleFunc("/insurance-fund/verify", fund.Verify).Methods(http.MethodPost)
	api.HandleFunc("/insurance-fund/clear-hold", fund.ClearHold).Methods(http.MethodPost)

	api.HandleFunc("/negotiations", negotiations.Create).Methods(http.MethodPost)
	api.HandleFunc("/negotiations", negotiations.ListByOrder).Methods(http.MethodGet)
	api.HandleFunc("/negotiations/{id}", negotiations.Get).Methods(http.MethodGet)
	api.HandleFunc("/negotiations/{id}/send", negotiations.Send).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/counter-offers", negotiations.CounterOffer).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/accept", negotiations.Accept).Methods(http.MethodPost)
	api.HandleFunc("/negotiations/{id}/reject", negotiations.Reject).Methods(http.MethodPost)

	api.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", notifications.MarkAsRead).Methods(http.MethodPost)

	return r
}
