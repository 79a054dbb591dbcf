package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"xenial-settlement/internal/config"
	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/logger"
	"xenial-settlement/internal/repository"
)

type approvalService struct {
	refundRepo   repository.RefundRequestRepository
	approvalRepo repository.RefundApprovalRepository
	approverRepo repository.ApproverDirectoryRepository
	noteRepo     repository.NotificationRepository
	txManager    repository.TxManager
	emailSvc     EmailService

	thresholds    config.ApprovalConfig
	appendRetries int
	alertEmail    string
}

func NewApprovalService(
	refundRepo repository.RefundRequestRepository,
	approvalRepo repository.RefundApprovalRepository,
	approverRepo repository.ApproverDirectoryRepository,
	noteRepo repository.NotificationRepository,
	txManager repository.TxManager,
	emailSvc EmailService,
	cfg *config.Config,
) ApprovalService {
	return &approvalService{
		refundRepo:    refundRepo,
		approvalRepo:  approvalRepo,
		approverRepo:  approverRepo,
		noteRepo:      noteRepo,
		txManager:     txManager,
		emailSvc:      emailSvc,
		thresholds:    cfg.Approval,
		appendRetries: cfg.Fund.AppendRetries,
		alertEmail:    cfg.SMTP.FinanceAlertEmail,
	}
}

func (s *approvalService) transition(ctx context.Context, req *domain.RefundRequest, to domain.RefundStatus) error {
	from := req.Status
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s cannot move from %s to %s", domain.ErrInvalidTransition, req.RequestNumber, from, to)
	}
	req.Status = to
	if err := s.refundRepo.UpdateStatus(ctx, req, from); err != nil {
		req.Status = from
		return err
	}
	logger.Info("refund request transitioned", "request_number", req.RequestNumber, "from", from, "to", to)
	return nil
}

func (s *approvalService) requireApprover(ctx context.Context, tenantID, actorID string, minLevel int32) (int32, error) {
	level, err := s.approverRepo.LevelFor(ctx, tenantID, actorID)
	if err != nil {
		return 0, err
	}
	if level < minLevel {
		return 0, fmt.Errorf("%w: %s requires %s authority", domain.ErrUnauthorized, actorID, domain.ApprovalLevelName(minLevel))
	}
	return level, nil
}

func (s *approvalService) BeginInvestigation(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error) {
	if _, err := s.requireApprover(ctx, tenantID, actorID, domain.ApprovalLevelFinance); err != nil {
		return nil, err
	}
	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	req.CurrentApproverID = &actorID
	if err := s.transition(ctx, req, domain.RefundStatusUnderInvestigation); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *approvalService) MarkReadyForFinance(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error) {
	if _, err := s.requireApprover(ctx, tenantID, actorID, domain.ApprovalLevelFinance); err != nil {
		return nil, err
	}
	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	req.CurrentApproverID = nil
	if err := s.transition(ctx, req, domain.RefundStatusPendingFinance); err != nil {
		return nil, err
	}
	return req, nil
}

// levelForStatus maps a pending approval status to the level that decides
// it; zero for statuses that take no decisions.
func levelForStatus(status domain.RefundStatus) int32 {
	switch status {
	case domain.RefundStatusPendingFinance:
		return domain.ApprovalLevelFinance
	case domain.RefundStatusPendingManager:
		return domain.ApprovalLevelManager
	case domain.RefundStatusPendingExecutive:
		return domain.ApprovalLevelExecutive
	}
	return 0
}

// executiveRequired applies the escalation thresholds that interpose an
// executive level between manager approval and approved.
func (s *approvalService) executiveRequired(req *domain.RefundRequest) bool {
	calc := req.Calculation
	if calc == nil {
		return false
	}
	if calc.RefundableToCustomer.GreaterThan(decimal.NewFromFloat(s.thresholds.ExecutiveAmountThreshold)) {
		return true
	}
	if calc.CompanyLoss.GreaterThan(decimal.NewFromFloat(s.thresholds.CriticalLossThreshold)) {
		return true
	}
	if req.RefundReason == domain.RefundReasonVendorFailure &&
		calc.VendorRecoverable.GreaterThan(decimal.NewFromFloat(s.thresholds.VendorFailureExecutiveThreshold)) {
		return true
	}
	return false
}

func (s *approvalService) RecordDecision(ctx context.Context, tenantID, id string, in DecisionInput) (*domain.RefundRequest, error) {
	logger.EnterMethod("RecordDecision", "tenant_id", tenantID, "refund_request_id", id, "decision", in.Decision)
	if !in.Decision.Valid() {
		return nil, &domain.ValidationError{Field: "decision", Reason: fmt.Sprintf("unknown decision %q", in.Decision)}
	}

	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	level := levelForStatus(req.Status)
	if level == 0 {
		// A reviewer can still send a request back for information
		// before the decision chain starts.
		if in.Decision == domain.ApprovalDecisionNeedsInfo && req.Status.PreDecision() {
			level = domain.ApprovalLevelFinance
		} else {
			return nil, fmt.Errorf("%w: %s is not awaiting a decision in status %s", domain.ErrInvalidTransition, req.RequestNumber, req.Status)
		}
	}
	if _, err := s.requireApprover(ctx, tenantID, in.ActorID, level); err != nil {
		return nil, err
	}

	prior, err := s.approvalRepo.ListByRequest(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	// Levels are non-decreasing per request; a decision below the chain's
	// high-water mark means the caller is working from a stale read.
	for i := range prior {
		if prior[i].ApprovalLevel > level {
			return nil, fmt.Errorf("%w: level %d decision after level %d was recorded", domain.ErrConcurrentModification, level, prior[i].ApprovalLevel)
		}
	}
	if level == domain.ApprovalLevelManager && in.Decision == domain.ApprovalDecisionApproved && !hasApprovedAt(prior, domain.ApprovalLevelFinance) {
		return nil, fmt.Errorf("%w: manager approval without a recorded finance approval", domain.ErrInvalidTransition)
	}

	approval := &domain.RefundApproval{
		TenantID:        tenantID,
		RefundRequestID: req.ID,
		ApproverID:      in.ActorID,
		ApprovalLevel:   level,
		Decision:        in.Decision,
		DecisionNotes:   in.Notes,
		AdjustedAmount:  in.AdjustedAmount,
		DecidedAt:       time.Now(),
	}
	if level == domain.ApprovalLevelFinance && req.Calculation != nil {
		snapshot := *req.Calculation
		approval.ReviewedCalculation = &snapshot
	}

	var next domain.RefundStatus
	switch in.Decision {
	case domain.ApprovalDecisionNeedsInfo:
		req.PriorStatus = req.Status
		next = domain.RefundStatusNeedsInfo
	case domain.ApprovalDecisionRejected:
		next = domain.RefundStatusRejected
	case domain.ApprovalDecisionApproved:
		switch level {
		case domain.ApprovalLevelFinance:
			next = domain.RefundStatusPendingManager
		case domain.ApprovalLevelManager:
			if s.executiveRequired(req) {
				next = domain.RefundStatusPendingExecutive
			} else {
				next = domain.RefundStatusApproved
			}
		case domain.ApprovalLevelExecutive:
			next = domain.RefundStatusApproved
		}
	}
	if next == domain.RefundStatusApproved {
		now := time.Now()
		req.ApprovedAt = &now
	}
	req.CurrentApproverID = nil

	err = s.txManager.WithinTx(ctx, func(r *repository.Repositories) error {
		if err := r.RefundApprovals.Create(ctx, approval); err != nil {
			return err
		}
		from := req.Status
		if !from.CanTransition(next) {
			return fmt.Errorf("%w: %s cannot move from %s to %s", domain.ErrInvalidTransition, req.RequestNumber, from, next)
		}
		req.Status = next
		if err := r.RefundRequests.UpdateStatus(ctx, req, from); err != nil {
			req.Status = from
			return err
		}
		return nil
	})
	if err != nil {
		logger.ExitMethodWithError("RecordDecision", err)
		return nil, err
	}

	s.notifyRequester(ctx, req, fmt.Sprintf("Refund request %s is now %s", req.RequestNumber, req.Status))
	logger.ExitMethod("RecordDecision", "request_number", req.RequestNumber, "status", req.Status)
	return req, nil
}

func hasApprovedAt(approvals []domain.RefundApproval, level int32) bool {
	for i := range approvals {
		if approvals[i].ApprovalLevel == level && approvals[i].Decision == domain.ApprovalDecisionApproved {
			return true
		}
	}
	return false
}

// ResubmitInfo returns a needs_info request to the pending state it left,
// carrying the customer's new evidence and notes.
func (s *approvalService) ResubmitInfo(ctx context.Context, tenantID, id, requesterID, notes string, evidence []domain.EvidenceDocument) (*domain.RefundRequest, error) {
	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RefundStatusNeedsInfo {
		return nil, fmt.Errorf("%w: %s is not waiting on information", domain.ErrInvalidTransition, req.RequestNumber)
	}
	if req.RequesterID != requesterID {
		return nil, fmt.Errorf("%w: only the requester may resubmit", domain.ErrUnauthorized)
	}

	back := req.PriorStatus
	if back == "" {
		back = domain.RefundStatusPendingReview
	}
	from := req.Status
	if !from.CanTransition(back) {
		return nil, fmt.Errorf("%w: %s cannot move from %s to %s", domain.ErrInvalidTransition, req.RequestNumber, from, back)
	}

	// The evidence write and the status swap commit together; losing the
	// swap must not leave new evidence on a request still in needs_info.
	err = s.txManager.WithinTx(ctx, func(r *repository.Repositories) error {
		if len(evidence) > 0 || notes != "" {
			if err := r.RefundRequests.AppendEvidence(ctx, tenantID, id, evidence, notes); err != nil {
				return err
			}
		}
		req.Status = back
		req.PriorStatus = ""
		if err := r.RefundRequests.UpdateStatus(ctx, req, from); err != nil {
			req.Status = from
			req.PriorStatus = back
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("refund request transitioned", "request_number", req.RequestNumber, "from", from, "to", back)
	return req, nil
}

// ProcessRefund moves an approved request to processing. When the
// settlement carries a company loss, the insurance fund withdrawal and the
// status swap commit in one database transaction; if the debit cannot be
// appended the transaction rolls back and the request is sent back to
// pending_manager instead of sitting approved with no money movement.
func (s *approvalService) ProcessRefund(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error) {
	logger.EnterMethod("ProcessRefund", "tenant_id", tenantID, "refund_request_id", id)
	if _, err := s.requireApprover(ctx, tenantID, actorID, domain.ApprovalLevelFinance); err != nil {
		return nil, err
	}

	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if req.Status != domain.RefundStatusApproved {
		return nil, fmt.Errorf("%w: %s is %s, not approved", domain.ErrInvalidTransition, req.RequestNumber, req.Status)
	}

	var withdrawal *domain.InsuranceFundTransaction
	now := time.Now()
	req.ProcessedAt = &now

	err = s.txManager.WithinTx(ctx, func(r *repository.Repositories) error {
		if req.Calculation != nil && req.Calculation.CompanyLoss.IsPositive() {
			tx, err := withdrawFromFund(ctx, r.Fund, tenantID, WithdrawalInput{
				Amount:          req.Calculation.CompanyLoss,
				RefundRequestID: &req.ID,
				Description:     fmt.Sprintf("Company loss for refund %s", req.RequestNumber),
			}, s.appendRetries)
			if err != nil {
				return fmt.Errorf("fund debit for %s: %w", req.RequestNumber, err)
			}
			withdrawal = tx
		}
		req.Status = domain.RefundStatusProcessing
		if err := r.RefundRequests.UpdateStatus(ctx, req, domain.RefundStatusApproved); err != nil {
			req.Status = domain.RefundStatusApproved
			return err
		}
		return nil
	})
	if err != nil {
		req.ProcessedAt = nil
		s.revertAfterDebitFailure(ctx, req, err)
		logger.ExitMethodWithError("ProcessRefund", err)
		return nil, err
	}

	if withdrawal != nil && withdrawal.ShortfallAmount.IsPositive() && s.alertEmail != "" {
		if mailErr := s.emailSvc.SendShortfallAlert(ctx, s.alertEmail, tenantID, req.RequestNumber, withdrawal.ShortfallAmount); mailErr != nil {
			logger.Warn("failed to send shortfall alert", "request_number", req.RequestNumber, "error", mailErr)
		}
	}
	logger.ExitMethod("ProcessRefund", "request_number", req.RequestNumber)
	return req, nil
}

// revertAfterDebitFailure sends an approved request back to
// pending_manager after a failed ledger debit. Best effort: a lost swap
// here means someone else already moved the request.
func (s *approvalService) revertAfterDebitFailure(ctx context.Context, req *domain.RefundRequest, cause error) {
	if errors.Is(cause, domain.ErrConcurrentModification) && req.Status != domain.RefundStatusApproved {
		return
	}
	req.Status = domain.RefundStatusPendingManager
	req.ApprovedAt = nil
	if err := s.refundRepo.UpdateStatus(ctx, req, domain.RefundStatusApproved); err != nil {
		req.Status = domain.RefundStatusApproved
		logger.Warn("could not revert request after debit failure", "request_number", req.RequestNumber, "error", err)
		return
	}
	logger.Warn("refund request reverted to pending_manager after debit failure",
		"request_number", req.RequestNumber, "cause", cause)
}

func (s *approvalService) CompleteRefund(ctx context.Context, tenantID, id, actorID string) (*domain.RefundRequest, error) {
	if _, err := s.requireApprover(ctx, tenantID, actorID, domain.ApprovalLevelFinance); err != nil {
		return nil, err
	}
	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	req.CompletedAt = &now
	if err := s.transition(ctx, req, domain.RefundStatusCompleted); err != nil {
		req.CompletedAt = nil
		return nil, err
	}

	s.notifyRequester(ctx, req, fmt.Sprintf("Refund request %s has been completed", req.RequestNumber))
	if s.alertEmail != "" && req.Calculation != nil {
		if mailErr := s.emailSvc.SendRefundCompletedNotification(ctx, s.alertEmail, req.RequestNumber, req.Calculation.RefundableToCustomer, ""); mailErr != nil {
			logger.Warn("failed to send refund completed email", "request_number", req.RequestNumber, "error", mailErr)
		}
	}
	return req, nil
}

func (s *approvalService) notifyRequester(ctx context.Context, req *domain.RefundRequest, message string) {
	note := &domain.Notification{
		TenantID:    req.TenantID,
		RecipientID: req.RequesterID,
		Title:       "Refund request update",
		Message:     message,
		Attributes: map[string]string{
			"type":              "REFUND_STATUS",
			"refund_request_id": req.ID,
			"status":            string(req.Status),
		},
	}
	if err := s.noteRepo.Create(ctx, note); err != nil {
		logger.Warn("failed to record notification", "request_number", req.RequestNumber, "error", err)
	}
}

func (s *approvalService) GetWorkflowStatus(ctx context.Context, tenantID, id string) (*WorkflowStatus, error) {
	req, err := s.refundRepo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	approvals, err := s.approvalRepo.ListByRequest(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	required := []int32{domain.ApprovalLevelFinance, domain.ApprovalLevelManager}
	if s.executiveRequired(req) {
		required = append(required, domain.ApprovalLevelExecutive)
	}
	var completed []int32
	for _, level := range required {
		if hasApprovedAt(approvals, level) {
			completed = append(completed, level)
		}
	}

	return &WorkflowStatus{
		Request:           req,
		Approvals:         approvals,
		RequiredLevels:    required,
		CompletedLevels:   completed,
		EscalationReasons: s.escalationReasons(req),
	}, nil
}

// escalationReasons names the thresholds a request trips, for the
// workflow status view.
func (s *approvalService) escalationReasons(req *domain.RefundRequest) []string {
	calc := req.Calculation
	if calc == nil {
		return nil
	}
	var reasons []string
	if calc.CompanyLoss.GreaterThan(decimal.NewFromFloat(s.thresholds.ManagerLossThreshold)) {
		reasons = append(reasons, "company_loss_above_manager_threshold")
	}
	if calc.RefundableToCustomer.GreaterThan(decimal.NewFromFloat(s.thresholds.ManagerAmountThreshold)) {
		reasons = append(reasons, "refundable_above_manager_threshold")
	}
	if req.RefundReason == domain.RefundReasonQualityIssue &&
		req.QualityIssuePercentage != nil && *req.QualityIssuePercentage >= s.thresholds.QualityPctThreshold {
		reasons = append(reasons, "severe_quality_issue")
	}
	if calc.FaultParty == domain.FaultPartyCompany {
		reasons = append(reasons, "company_at_fault")
	}
	if calc.RefundableToCustomer.GreaterThan(decimal.NewFromFloat(s.thresholds.ExecutiveAmountThreshold)) {
		reasons = append(reasons, "refundable_above_executive_threshold")
	}
	if calc.CompanyLoss.GreaterThan(decimal.NewFromFloat(s.thresholds.CriticalLossThreshold)) {
		reasons = append(reasons, "critical_company_loss")
	}
	if req.RefundReason == domain.RefundReasonVendorFailure &&
		calc.VendorRecoverable.GreaterThan(decimal.NewFromFloat(s.thresholds.VendorFailureExecutiveThreshold)) {
		reasons = append(reasons, "large_vendor_failure_recovery")
	}
	return reasons
}
