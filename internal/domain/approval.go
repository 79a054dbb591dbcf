package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Approval levels in the refund chain. Higher levels are only reachable
// after lower levels approve.
const (
	ApprovalLevelFinance   int32 = 1
	ApprovalLevelManager   int32 = 2
	ApprovalLevelExecutive int32 = 3
)

// ApprovalLevelName returns the human-readable name for an approval level.
func ApprovalLevelName(level int32) string {
	switch level {
	case ApprovalLevelFinance:
		return "finance_review"
	case ApprovalLevelManager:
		return "manager_approval"
	case ApprovalLevelExecutive:
		return "executive_approval"
	}
	return "unknown"
}

// PendingStatusForLevel maps an approval level to the workflow status that
// waits on it.
func PendingStatusForLevel(level int32) RefundStatus {
	switch level {
	case ApprovalLevelFinance:
		return RefundStatusPendingFinance
	case ApprovalLevelManager:
		return RefundStatusPendingManager
	case ApprovalLevelExecutive:
		return RefundStatusPendingExecutive
	}
	return RefundStatusPendingReview
}

type ApprovalDecision string

const (
	ApprovalDecisionApproved  ApprovalDecision = "approved"
	ApprovalDecisionRejected  ApprovalDecision = "rejected"
	ApprovalDecisionNeedsInfo ApprovalDecision = "needs_info"
)

func (d ApprovalDecision) Valid() bool {
	switch d {
	case ApprovalDecisionApproved, ApprovalDecisionRejected, ApprovalDecisionNeedsInfo:
		return true
	}
	return false
}

// RefundApproval is one decision event in a request's approval chain.
// Rows are immutable once recorded; corrections are new rows.
type RefundApproval struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	RefundRequestID string `json:"refund_request_id"`
	ApproverID      string `json:"approver_id"`

	ApprovalLevel int32            `json:"approval_level"`
	Decision      ApprovalDecision `json:"decision"`
	DecisionNotes string           `json:"decision_notes"`

	// ReviewedCalculation is recorded at finance level only, when the
	// reviewer re-ran the settlement before deciding.
	ReviewedCalculation *RefundCalculation `json:"reviewed_calculation,omitempty"`
	AdjustedAmount      *decimal.Decimal   `json:"adjusted_amount,omitempty"`

	DecidedAt time.Time `json:"decided_at"`
}
