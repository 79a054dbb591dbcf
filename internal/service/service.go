package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"xenial-settlement/internal/domain"
)

// SubmitRefundInput is everything a requester supplies when opening a
// refund episode for an order.
type SubmitRefundInput struct {
	OrderID                string
	RefundReason           domain.RefundReason
	RefundType             domain.RefundType
	RequestedAmount        *decimal.Decimal
	QualityIssuePercentage *int32
	Evidence               []domain.EvidenceDocument
	CustomerNotes          string
}

// DecisionInput is one approver decision against a pending request.
type DecisionInput struct {
	ActorID        string
	Decision       domain.ApprovalDecision
	Notes          string
	AdjustedAmount *decimal.Decimal
}

// WorkflowStatus is the read model for a request's position in the
// approval chain.
type WorkflowStatus struct {
	Request           *domain.RefundRequest   `json:"request"`
	Approvals         []domain.RefundApproval `json:"approvals"`
	RequiredLevels    []int32                 `json:"required_levels"`
	CompletedLevels   []int32                 `json:"completed_levels"`
	EscalationReasons []string                `json:"escalation_reasons,omitempty"`
}

type RefundService interface {
	SubmitRefundRequest(ctx context.Context, tenantID, requesterID string, in SubmitRefundInput) (*domain.RefundRequest, error)
	GetRefundRequest(ctx context.Context, tenantID, id string) (*domain.RefundRequest, error)
	ListRefundRequests(ctx context.Context, tenantID, status string, page, pageSize int32) ([]domain.RefundRequest, int32, error)
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.RefundRequest, error)
	Recalculate(ctx context.Context, tenantID, id, actorID string) (*domain.RefundCalculation, error)
}

type ApprovalService interface {
	BeginInvestigation(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error)
	MarkReadyForFinance(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error)
	RecordDecision(ctx context.Context, tenantID, id string, in DecisionInput) (*domain.RefundRequest, error)
	ResubmitInfo(ctx context.Context, tenantID, id, requesterID, notes string, evidence []domain.EvidenceDocument) (*domain.RefundRequest, error)
	ProcessRefund(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error)
	CompleteRefund(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error)
	GetWorkflowStatus(ctx context.Context, tenantID, id string) (*WorkflowStatus, error)
}

// ContributionInput is a manual fund contribution.
type ContributionInput struct {
	Amount      decimal.Decimal
	OrderID     *string
	Description string
}

// WithdrawalInput is a fund withdrawal tied to a refund payout.
type WithdrawalInput struct {
	Amount          decimal.Decimal
	RefundRequestID *string
	Description     string
}

type FundService interface {
	Contribute(ctx context.Context, tenantID string, in ContributionInput) (*domain.InsuranceFundTransaction, error)
	ContributeFromOrder(ctx context.Context, tenantID, orderID string) (*domain.InsuranceFundTransaction, error)
	Withdraw(ctx context.Context, tenantID string, in WithdrawalInput) (*domain.InsuranceFundTransaction, error)
	CurrentBalance(ctx context.Context, tenantID string) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, tenantID, txType string, page, pageSize int32) ([]domain.InsuranceFundTransaction, int32, error)
	Statistics(ctx context.Context, tenantID string, from, to time.Time) (*domain.FundStatistics, error)

	// VerifyChain replays the tenant's full ledger and checks every
	// balance link. A broken chain places the fund on hold.
	VerifyChain(ctx context.Context, tenantID string) error
	ClearHold(ctx context.Context, tenantID string) error
}

// CreateNegotiationInput opens a draft negotiation with a vendor.
type CreateNegotiationInput struct {
	OrderID      string
	VendorID     string
	InitialOffer decimal.Decimal
	Currency     string
	QuoteDetails domain.QuoteDetails
	ExpiresAt    *time.Time
}

// CounterOfferInput is one party's counter in an open negotiation.
// ExpectedRound is the round the caller last saw; an offer against a
// stale round is rejected so the caller refetches before acting.
type CounterOfferInput struct {
	Actor         domain.NegotiationParty
	ExpectedRound int32
	Amount        decimal.Decimal
	Notes         string
}

type NegotiationService interface {
	CreateNegotiation(ctx context.Context, tenantID string, in CreateNegotiationInput) (*domain.OrderVendorNegotiation, error)
	SendNegotiation(ctx context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error)
	SubmitCounterOffer(ctx context.Context, tenantID, id string, in CounterOfferInput) (*domain.OrderVendorNegotiation, error)
	AcceptOffer(ctx context.Context, tenantID, id string, expectedRound int32, actor domain.NegotiationParty, notes string) (*domain.OrderVendorNegotiation, error)
	RejectOffer(ctx context.Context, tenantID, id string, expectedRound int32, actor domain.NegotiationParty, notes string) (*domain.OrderVendorNegotiation, error)
	GetNegotiation(ctx context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error)
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.OrderVendorNegotiation, error)
	ExpireStale(ctx context.Context, asOf time.Time) (int32, error)
}

type NotificationService interface {
	GetNotifications(ctx context.Context, tenantID, recipientID string, page, pageSize int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, tenantID, id string) error
}

type EmailService interface {
	SendRefundCompletedNotification(ctx context.Context, email, requestNumber string, amount decimal.Decimal, currency string) error
	SendLowBalanceAlert(ctx context.Context, email, tenantID string, balance, minimum decimal.Decimal) error
	SendShortfallAlert(ctx context.Context, email, tenantID, reference string, shortfall decimal.Decimal) error
	SendIntegrityHoldAlert(ctx context.Context, email, tenantID, detail string) error
	SendNegotiationClosedNotification(ctx context.Context, email, orderID, vendorID string, status string, finalAmount decimal.Decimal) error
}
