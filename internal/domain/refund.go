package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundStatusPendingReview      RefundStatus = "pending_review"
	RefundStatusUnderInvestigation RefundStatus = "under_investigation"
	RefundStatusPendingFinance     RefundStatus = "pending_finance"
	RefundStatusPendingManager     RefundStatus = "pending_manager"
	RefundStatusPendingExecutive   RefundStatus = "pending_executive"
	RefundStatusNeedsInfo          RefundStatus = "needs_info"
	RefundStatusApproved           RefundStatus = "approved"
	RefundStatusRejected           RefundStatus = "rejected"
	RefundStatusProcessing         RefundStatus = "processing"
	RefundStatusCompleted          RefundStatus = "completed"
)

// refundTransitions is the single source of truth for legal workflow moves.
// needs_info is handled separately: it is reachable from any pending state
// and returns to the state it left.
var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusPendingReview:      {RefundStatusUnderInvestigation, RefundStatusPendingFinance, RefundStatusNeedsInfo},
	RefundStatusUnderInvestigation: {RefundStatusPendingFinance, RefundStatusNeedsInfo},
	RefundStatusPendingFinance:     {RefundStatusPendingManager, RefundStatusRejected, RefundStatusNeedsInfo},
	RefundStatusPendingManager:     {RefundStatusPendingExecutive, RefundStatusApproved, RefundStatusRejected, RefundStatusNeedsInfo},
	RefundStatusPendingExecutive:   {RefundStatusApproved, RefundStatusRejected, RefundStatusNeedsInfo},
	RefundStatusNeedsInfo:          {RefundStatusPendingReview, RefundStatusUnderInvestigation, RefundStatusPendingFinance, RefundStatusPendingManager, RefundStatusPendingExecutive},
	RefundStatusApproved:           {RefundStatusProcessing, RefundStatusPendingManager},
	RefundStatusProcessing:         {RefundStatusCompleted},
}

// CanTransition reports whether moving from one workflow status to another
// is legal. Terminal states allow nothing.
func (s RefundStatus) CanTransition(to RefundStatus) bool {
	for _, next := range refundTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusCompleted || s == RefundStatusRejected
}

// PreDecision reports whether the status precedes the approval chain:
// the request is open but no level has decided anything yet.
func (s RefundStatus) PreDecision() bool {
	return s == RefundStatusPendingReview || s == RefundStatusUnderInvestigation
}

// IsPending reports whether the status is waiting on an approver decision.
func (s RefundStatus) IsPending() bool {
	switch s {
	case RefundStatusPendingReview, RefundStatusUnderInvestigation,
		RefundStatusPendingFinance, RefundStatusPendingManager, RefundStatusPendingExecutive:
		return true
	}
	return false
}

type RefundReason string

const (
	RefundReasonCustomerRequest RefundReason = "customer_request"
	RefundReasonQualityIssue    RefundReason = "quality_issue"
	RefundReasonVendorFailure   RefundReason = "vendor_failure"
	RefundReasonTimelineDelay   RefundReason = "timeline_delay"
	RefundReasonProductionError RefundReason = "production_error"
	RefundReasonShippingDamage  RefundReason = "shipping_damage"
)

// Valid reports whether the reason is one of the known refund reasons.
func (r RefundReason) Valid() bool {
	switch r {
	case RefundReasonCustomerRequest, RefundReasonQualityIssue, RefundReasonVendorFailure,
		RefundReasonTimelineDelay, RefundReasonProductionError, RefundReasonShippingDamage:
		return true
	}
	return false
}

type RefundType string

const (
	RefundTypeFull        RefundType = "full"
	RefundTypePartial     RefundType = "partial"
	RefundTypeReplacement RefundType = "replacement"
	RefundTypeCreditNote  RefundType = "credit_note"
)

func (t RefundType) Valid() bool {
	switch t {
	case RefundTypeFull, RefundTypePartial, RefundTypeReplacement, RefundTypeCreditNote:
		return true
	}
	return false
}

// EvidenceDocument is a caller-supplied reference to supporting material.
// The core stores the reference only; file storage is external.
type EvidenceDocument struct {
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// RefundRequest is one refund episode for an order. It is a financial
// record: it is never physically deleted, and its calculation snapshot is
// only ever replaced wholesale, never mutated in place.
type RefundRequest struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	OrderID       string `json:"order_id"`
	RequestNumber string `json:"request_number"`

	RefundReason           RefundReason       `json:"refund_reason"`
	RefundType             RefundType         `json:"refund_type"`
	RequestedAmount        *decimal.Decimal   `json:"requested_amount,omitempty"`
	QualityIssuePercentage *int32             `json:"quality_issue_percentage,omitempty"`
	Evidence               []EvidenceDocument `json:"evidence"`
	CustomerNotes          string             `json:"customer_notes"`

	Calculation *RefundCalculation `json:"calculation"`

	Status RefundStatus `json:"status"`
	// PriorStatus remembers the pending state a needs_info branch left, so
	// customer resubmission returns exactly there.
	PriorStatus       RefundStatus `json:"prior_status,omitempty"`
	CurrentApproverID *string      `json:"current_approver_id,omitempty"`

	RequesterID string     `json:"requester_id"`
	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
