package repository

import (
	"context"
	"time"

	"xenial-settlement/internal/domain"
)

type RefundRequestRepository interface {
	Create(ctx context.Context, req *domain.RefundRequest) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.RefundRequest, error)
	ListByTenant(ctx context.Context, tenantID string, status string, page, pageSize int32) ([]domain.RefundRequest, int32, error)
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.RefundRequest, error)
	CountForDay(ctx context.Context, tenantID string, day time.Time) (int32, error)
	UpdateCalculation(ctx context.Context, tenantID, id string, calc *domain.RefundCalculation) error
	AppendEvidence(ctx context.Context, tenantID, id string, evidence []domain.EvidenceDocument, notes string) error

	// UpdateStatus moves the request from expected to next only if the row
	// still carries expected; otherwise it returns ErrConcurrentModification.
	UpdateStatus(ctx context.Context, req *domain.RefundRequest, expected domain.RefundStatus) error
}

type RefundApprovalRepository interface {
	Create(ctx context.Context, approval *domain.RefundApproval) error
	ListByRequest(ctx context.Context, tenantID, refundRequestID string) ([]domain.RefundApproval, error)
}

type FundRepository interface {
	// LastTransaction returns the newest chain row for the tenant, or
	// (nil, nil) when the chain is empty.
	LastTransaction(ctx context.Context, tenantID string) (*domain.InsuranceFundTransaction, error)

	// AppendTransaction inserts tx as the next chain row only if the
	// tenant's current max seq still equals expectedSeq. On a lost race it
	// returns ErrConcurrentModification and writes nothing.
	AppendTransaction(ctx context.Context, tx *domain.InsuranceFundTransaction, expectedSeq int64) error

	ListTransactions(ctx context.Context, tenantID string, txType string, page, pageSize int32) ([]domain.InsuranceFundTransaction, int32, error)
	ListChain(ctx context.Context, tenantID string) ([]domain.InsuranceFundTransaction, error)
	ListTenants(ctx context.Context) ([]string, error)
	Statistics(ctx context.Context, tenantID string, from, to time.Time) (*domain.FundStatistics, error)

	HasHold(ctx context.Context, tenantID string) (bool, error)
	PlaceHold(ctx context.Context, tenantID, reason string) error
	ClearHold(ctx context.Context, tenantID string) error
}

type NegotiationRepository interface {
	Create(ctx context.Context, n *domain.OrderVendorNegotiation) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error)
	ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.OrderVendorNegotiation, error)

	// Update persists the full negotiation only if the row still carries
	// the expected status and round; otherwise it returns
	// ErrConcurrentModification.
	Update(ctx context.Context, n *domain.OrderVendorNegotiation, expectedStatus domain.NegotiationStatus, expectedRound int32) error

	ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int32) ([]domain.OrderVendorNegotiation, error)
}

type OrderRepository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, note *domain.Notification) error
	List(ctx context.Context, tenantID, recipientID string, limit, offset int32) ([]domain.Notification, int32, error)
	MarkAsRead(ctx context.Context, tenantID, id string) error
}

// ApproverDirectoryRepository answers who may decide at a given approval
// level for a tenant.
type ApproverDirectoryRepository interface {
	LevelFor(ctx context.Context, tenantID, actorID string) (int32, error)
}

// Repositories bundles every repository bound to one database handle, so a
// transaction-scoped set can be handed to a closure.
type Repositories struct {
	RefundRequests  RefundRequestRepository
	RefundApprovals RefundApprovalRepository
	Fund            FundRepository
	Negotiations    NegotiationRepository
	Orders          OrderRepository
	Notifications   NotificationRepository
	Approvers       ApproverDirectoryRepository
}

// TxManager runs a closure against repositories bound to a single database
// transaction. The transaction commits if fn returns nil and rolls back
// otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(r *Repositories) error) error
}
