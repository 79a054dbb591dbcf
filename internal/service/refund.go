package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"xenial-settlement/internal/config"
	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/logger"
	"xenial-settlement/internal/repository"
	"xenial-settlement/internal/utils"
)

type refundService struct {
	refundRepo repository.RefundRequestRepository
	orderRepo  repository.OrderRepository
	policy     utils.RefundPolicy
}

func NewRefundService(
	refundRepo repository.RefundRequestRepository,
	orderRepo repository.OrderRepository,
	cfg *config.Config,
) RefundService {
	return &refundService{
		refundRepo: refundRepo,
		orderRepo:  orderRepo,
		policy:     PolicyFromConfig(cfg),
	}
}

// PolicyFromConfig converts the yaml policy settings into the decimal
// policy the settlement engine consumes.
func PolicyFromConfig(cfg *config.Config) utils.RefundPolicy {
	percents := make(map[domain.RefundReason]decimal.Decimal, len(cfg.Refund.PartialRefundPercent))
	for reason, pct := range cfg.Refund.PartialRefundPercent {
		percents[domain.RefundReason(reason)] = decimal.NewFromFloat(pct)
	}
	return utils.RefundPolicy{
		PartialRefundPercent: percents,
		RiskLowMax:           decimal.NewFromFloat(cfg.Refund.RiskLowMax),
		RiskMediumMax:        decimal.NewFromFloat(cfg.Refund.RiskMediumMax),
	}
}

func (s *refundService) SubmitRefundRequest(ctx context.Context, tenantID, requesterID string, in SubmitRefundInput) (*domain.RefundRequest, error) {
	logger.EnterMethod("SubmitRefundRequest", "tenant_id", tenantID, "order_id", in.OrderID)

	if !in.RefundReason.Valid() {
		return nil, &domain.ValidationError{Field: "refund_reason", Reason: fmt.Sprintf("unknown reason %q", in.RefundReason)}
	}
	if !in.RefundType.Valid() {
		return nil, &domain.ValidationError{Field: "refund_type", Reason: fmt.Sprintf("unknown type %q", in.RefundType)}
	}
	if in.RequestedAmount != nil && !in.RequestedAmount.IsPositive() {
		return nil, &domain.ValidationError{Field: "requested_amount", Reason: "must be positive when given"}
	}

	order, err := s.orderRepo.GetByID(ctx, tenantID, in.OrderID)
	if err != nil {
		return nil, err
	}
	if in.RequestedAmount != nil && in.RequestedAmount.GreaterThan(order.PaidAmount) {
		return nil, &domain.ValidationError{Field: "requested_amount", Reason: "exceeds amount paid on the order"}
	}

	// One refund episode at a time per order.
	existing, err := s.refundRepo.ListByOrder(ctx, tenantID, in.OrderID)
	if err != nil {
		return nil, err
	}
	for i := range existing {
		if !existing[i].Status.IsTerminal() {
			return nil, &domain.ValidationError{Field: "order_id", Reason: fmt.Sprintf("refund request %s is still open for this order", existing[i].RequestNumber)}
		}
	}

	calc, err := utils.CalculateRefund(utils.RefundInput{
		OrderTotal:             order.TotalAmount,
		CustomerPaid:           order.PaidAmount,
		VendorCostPaid:         order.VendorCostPaid,
		ProductionProgress:     order.ProductionProgressPercent,
		Reason:                 in.RefundReason,
		QualityIssuePercentage: in.QualityIssuePercentage,
	}, s.policy, requesterID)
	if err != nil {
		logger.ExitMethodWithError("SubmitRefundRequest", err)
		return nil, err
	}

	now := time.Now()
	number, err := s.nextRequestNumber(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}

	req := &domain.RefundRequest{
		TenantID:               tenantID,
		OrderID:                order.ID,
		RequestNumber:          number,
		RefundReason:           in.RefundReason,
		RefundType:             in.RefundType,
		RequestedAmount:        in.RequestedAmount,
		QualityIssuePercentage: in.QualityIssuePercentage,
		Evidence:               in.Evidence,
		CustomerNotes:          in.CustomerNotes,
		Calculation:            calc,
		Status:                 domain.RefundStatusPendingReview,
		RequesterID:            requesterID,
		RequestedAt:            now,
	}
	if err := s.refundRepo.Create(ctx, req); err != nil {
		logger.ExitMethodWithError("SubmitRefundRequest", err)
		return nil, err
	}

	logger.ExitMethod("SubmitRefundRequest", "request_number", req.RequestNumber)
	return req, nil
}

func (s *refundService) nextRequestNumber(ctx context.Context, tenantID string, now time.Time) (string, error) {
	count, err := s.refundRepo.CountForDay(ctx, tenantID, now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RFD-%s-%05d", now.Format("20060102"), count+1), nil
}

func (s *refundService) GetRefundRequest(ctx context.Context, tenantID, id string) (*domain.RefundRequest, error) {
	return s.refundRepo.GetByID(ctx, tenantID, id)
}

func (s *refundService) ListRefundRequests(ctx context.Context, tenantID, status string, page, pageSize int32) ([]domain.RefundRequest, int32, error) {
	return s.refundRepo.ListByTenant(ctx, tenantID, status, page, pageSize)
}

func (s *refundService) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.RefundRequest, error) {
	return s.refundRepo.ListByOrder(ctx, tenantID, orderID)
}

// Recalculate re-runs the settlement against the current order snapshot
// and replaces the request's calculation wholesale. Only non-terminal,
// not-yet-approved requests may be recalculated.
func (s *refundService) Recalculate(ctx context.Context, tenantID, id, actorID string) (*domain.RefundCalculation, error) {
	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	switch req.Status {
	case domain.RefundStatusApproved, domain.RefundStatusProcessing:
		return nil, fmt.Errorf("%w: calculation is frozen after approval", domain.ErrInvalidTransition)
	}
	if req.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: request %s is %s", domain.ErrInvalidTransition, req.RequestNumber, req.Status)
	}

	order, err := s.orderRepo.GetByID(ctx, tenantID, req.OrderID)
	if err != nil {
		return nil, err
	}
	calc, err := utils.CalculateRefund(utils.RefundInput{
		OrderTotal:             order.TotalAmount,
		CustomerPaid:           order.PaidAmount,
		VendorCostPaid:         order.VendorCostPaid,
		ProductionProgress:     order.ProductionProgressPercent,
		Reason:                 req.RefundReason,
		QualityIssuePercentage: req.QualityIssuePercentage,
	}, s.policy, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.refundRepo.UpdateCalculation(ctx, tenantID, id, calc); err != nil {
		return nil, err
	}
	logger.Info("refund calculation replaced", "request_number", req.RequestNumber, "calculated_by", actorID)
	return calc, nil
}
