package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/service"
)

type RefundHandler struct {
	refundSvc   service.RefundService
	approvalSvc service.ApprovalService
}

func NewRefundHandler(refundSvc service.RefundService, approvalSvc service.ApprovalService) *RefundHandler {
	return &RefundHandler{refundSvc: refundSvc, approvalSvc: approvalSvc}
}

type submitRefundRequestBody struct {
	OrderID                string                    `json:"order_id"`
	RefundReason           string                    `json:"refund_reason"`
	RefundType             string                    `json:"refund_type"`
	RequestedAmount        *decimal.Decimal          `json:"requested_amount,omitempty"`
	QualityIssuePercentage *int32                    `json:"quality_issue_percentage,omitempty"`
	Evidence               []domain.EvidenceDocument `json:"evidence,omitempty"`
	CustomerNotes          string                    `json:"customer_notes,omitempty"`
}

func (h *RefundHandler) Submit(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body submitRefundRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := h.refundSvc.SubmitRefundRequest(r.Context(), claims.TenantID, claims.ActorID, service.SubmitRefundInput{
		OrderID:                body.OrderID,
		RefundReason:           domain.RefundReason(body.RefundReason),
		RefundType:             domain.RefundType(body.RefundType),
		RequestedAmount:        body.RequestedAmount,
		QualityIssuePercentage: body.QualityIssuePercentage,
		Evidence:               body.Evidence,
		CustomerNotes:          body.CustomerNotes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *RefundHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	status, err := h.approvalSvc.GetWorkflowStatus(r.Context(), claims.TenantID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *RefundHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	page, pageSize := pagination(r)
	reqs, total, err := h.refundSvc.ListRefundRequests(r.Context(), claims.TenantID, r.URL.Query().Get("status"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"refund_requests": reqs, "total": total})
}

func (h *RefundHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	calc, err := h.refundSvc.Recalculate(r.Context(), claims.TenantID, mux.Vars(r)["id"], claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

func (h *RefundHandler) Investigate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	req, err := h.approvalSvc.BeginInvestigation(r.Context(), claims.TenantID, mux.Vars(r)["id"], claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RefundHandler) ReadyForFinance(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	req, err := h.approvalSvc.MarkReadyForFinance(r.Context(), claims.TenantID, mux.Vars(r)["id"], claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type decisionBody struct {
	Decision       string           `json:"decision"`
	Notes          string           `json:"notes,omitempty"`
	AdjustedAmount *decimal.Decimal `json:"adjusted_amount,omitempty"`
}

func (h *RefundHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body decisionBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := h.approvalSvc.RecordDecision(r.Context(), claims.TenantID, mux.Vars(r)["id"], service.DecisionInput{
		ActorID:        claims.ActorID,
		Decision:       domain.ApprovalDecision(body.Decision),
		Notes:          body.Notes,
		AdjustedAmount: body.AdjustedAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type resubmitInfoBody struct {
	Notes    string                    `json:"notes,omitempty"`
	Evidence []domain.EvidenceDocument `json:"evidence,omitempty"`
}

func (h *RefundHandler) ResubmitInfo(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	var body resubmitInfoBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := h.approvalSvc.ResubmitInfo(r.Context(), claims.TenantID, mux.Vars(r)["id"], claims.ActorID, body.Notes, body.Evidence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RefundHandler) Process(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	req, err := h.approvalSvc.ProcessRefund(r.Context(), claims.TenantID, mux.Vars(r)["id"], claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *RefundHandler) Complete(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	req, err := h.approvalSvc.CompleteRefund(r.Context(), claims.TenantID, mux.Vars(r)["id"], claims.ActorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func pagination(r *http.Request) (int32, int32) {
	page := int32(1)
	pageSize := int32(20)
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = int32(v)
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= 100 {
		pageSize = int32(v)
	}
	return page, pageSize
}
