package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"xenial-settlement/internal/config"
	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/repository"
)

type approvalFixture struct {
	refundRepo   *fakeRefundRepo
	approvalRepo *fakeApprovalRepo
	approverRepo *fakeApproverRepo
	fundRepo     *fakeFundRepo
	noteRepo     *fakeNotificationRepo
	emailSvc     *MockEmailService
	svc          ApprovalService
}

func newApprovalFixture(cfg *config.Config) *approvalFixture {
	f := &approvalFixture{
		refundRepo:   newFakeRefundRepo(),
		approvalRepo: &fakeApprovalRepo{},
		fundRepo:     newFakeFundRepo(),
		noteRepo:     &fakeNotificationRepo{},
		emailSvc:     new(MockEmailService),
	}
	f.approverRepo = &fakeApproverRepo{levels: map[string]int32{
		"fin-1":  domain.ApprovalLevelFinance,
		"mgr-1":  domain.ApprovalLevelManager,
		"exec-1": domain.ApprovalLevelExecutive,
	}}
	txManager := &fakeTxManager{repos: &repository.Repositories{
		RefundRequests:  f.refundRepo,
		RefundApprovals: f.approvalRepo,
		Fund:            f.fundRepo,
		Notifications:   f.noteRepo,
		Approvers:       f.approverRepo,
	}}
	f.svc = NewApprovalService(f.refundRepo, f.approvalRepo, f.approverRepo, f.noteRepo, txManager, f.emailSvc, cfg)
	return f
}

func (f *approvalFixture) seedRequest(status domain.RefundStatus, calc *domain.RefundCalculation) *domain.RefundRequest {
	req := &domain.RefundRequest{
		TenantID:      "tenant-1",
		OrderID:       "order-1",
		RequestNumber: "RFD-20260831-00001",
		RefundReason:  domain.RefundReasonCustomerRequest,
		RefundType:    domain.RefundTypePartial,
		Calculation:   calc,
		Status:        status,
		RequesterID:   "cust-1",
		RequestedAt:   time.Now(),
	}
	_ = f.refundRepo.Create(context.Background(), req)
	return req
}

func calcSnapshot(refundable, loss string) *domain.RefundCalculation {
	return &domain.RefundCalculation{
		RefundableToCustomer: dec(refundable),
		VendorRecoverable:    decimal.Zero,
		CompanyLoss:          dec(loss),
		RetainedByCompany:    decimal.Zero,
		RiskLevel:            domain.RiskLevelLow,
		FaultParty:           domain.FaultPartyCustomer,
		CalculatedAt:         time.Now(),
		CalculatedBy:         "cust-1",
	}
}

func TestApprovalService_FullWorkflowWalk(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusPendingReview, calcSnapshot("7000", "2000"))

	// Fund the ledger so processing has something to debit.
	_, err := appendFundTransaction(ctx, f.fundRepo, "tenant-1", 1,
		func(before decimal.Decimal) (*domain.InsuranceFundTransaction, error) {
			return &domain.InsuranceFundTransaction{
				TransactionType: domain.FundTransactionContribution,
				Amount:          dec("10000"),
				BalanceAfter:    before.Add(dec("10000")),
			}, nil
		})
	require.NoError(t, err)

	got, err := f.svc.BeginInvestigation(ctx, "tenant-1", req.ID, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusUnderInvestigation, got.Status)
	require.NotNil(t, got.CurrentApproverID)
	assert.Equal(t, "fin-1", *got.CurrentApproverID)

	got, err = f.svc.MarkReadyForFinance(ctx, "tenant-1", req.ID, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPendingFinance, got.Status)

	got, err = f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "fin-1",
		Decision: domain.ApprovalDecisionApproved,
		Notes:    "Numbers verified",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPendingManager, got.Status)

	// Finance reviews record the calculation they signed off on.
	require.Len(t, f.approvalRepo.rows, 1)
	finRow := f.approvalRepo.rows[0]
	assert.Equal(t, domain.ApprovalLevelFinance, finRow.ApprovalLevel)
	require.NotNil(t, finRow.ReviewedCalculation)
	assert.True(t, finRow.ReviewedCalculation.RefundableToCustomer.Equal(dec("7000")))

	got, err = f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "mgr-1",
		Decision: domain.ApprovalDecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusApproved, got.Status)
	assert.NotNil(t, got.ApprovedAt)

	got, err = f.svc.ProcessRefund(ctx, "tenant-1", req.ID, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusProcessing, got.Status)
	assert.NotNil(t, got.ProcessedAt)

	// The company loss was debited from the fund in the same move.
	last, err := f.fundRepo.LastTransaction(ctx, "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, domain.FundTransactionWithdrawal, last.TransactionType)
	assert.True(t, last.Amount.Equal(dec("2000")))
	assert.True(t, last.BalanceAfter.Equal(dec("8000")))
	require.NotNil(t, last.RefundRequestID)
	assert.Equal(t, req.ID, *last.RefundRequestID)

	f.emailSvc.On("SendRefundCompletedNotification", ctx, "finance@xenial.test", "RFD-20260831-00001", mock.Anything, "").Return(nil)
	got, err = f.svc.CompleteRefund(ctx, "tenant-1", req.ID, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// Completed is terminal; a second decision bounces.
	_, err = f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "mgr-1",
		Decision: domain.ApprovalDecisionApproved,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	f.emailSvc.AssertExpectations(t)
	assert.NotEmpty(t, f.noteRepo.rows, "requester should have been notified along the way")
}

func TestApprovalService_ExecutiveEscalation(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	// Refundable above the executive threshold forces a third level.
	req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("6000000", "0"))

	_, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{ActorID: "fin-1", Decision: domain.ApprovalDecisionApproved})
	require.NoError(t, err)

	got, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{ActorID: "mgr-1", Decision: domain.ApprovalDecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPendingExecutive, got.Status)
	assert.Nil(t, got.ApprovedAt)

	// A manager cannot sign at the executive level.
	_, err = f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{ActorID: "mgr-1", Decision: domain.ApprovalDecisionApproved})
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	got, err = f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{ActorID: "exec-1", Decision: domain.ApprovalDecisionApproved})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusApproved, got.Status)
	assert.NotNil(t, got.ApprovedAt)
}

func TestApprovalService_ManagerNeedsFinanceFirst(t *testing.T) {
	f := newApprovalFixture(testConfig())
	req := f.seedRequest(domain.RefundStatusPendingManager, calcSnapshot("5000", "0"))

	_, err := f.svc.RecordDecision(context.Background(), "tenant-1", req.ID, DecisionInput{
		ActorID:  "mgr-1",
		Decision: domain.ApprovalDecisionApproved,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "finance approval")
}

func TestApprovalService_StaleDecisionBelowHighWaterMark(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("5000", "0"))

	// A manager approval row already on record means this finance decision
	// comes from a stale read of the workflow.
	require.NoError(t, f.approvalRepo.Create(ctx, &domain.RefundApproval{
		TenantID:        "tenant-1",
		RefundRequestID: req.ID,
		ApproverID:      "mgr-1",
		ApprovalLevel:   domain.ApprovalLevelManager,
		Decision:        domain.ApprovalDecisionApproved,
	}))

	_, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "fin-1",
		Decision: domain.ApprovalDecisionApproved,
	})
	require.ErrorIs(t, err, domain.ErrConcurrentModification)
}

func TestApprovalService_NeedsInfoRoundTrip(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("5000", "0"))

	got, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "fin-1",
		Decision: domain.ApprovalDecisionNeedsInfo,
		Notes:    "Need the courier claim reference",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusNeedsInfo, got.Status)
	assert.Equal(t, domain.RefundStatusPendingFinance, got.PriorStatus)

	// Only the requester may resubmit.
	_, err = f.svc.ResubmitInfo(ctx, "tenant-1", req.ID, "fin-1", "here", nil)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	evidence := []domain.EvidenceDocument{{Type: "claim", URL: "https://files.example/claim.pdf", Filename: "claim.pdf"}}
	got, err = f.svc.ResubmitInfo(ctx, "tenant-1", req.ID, "cust-1", "Claim attached", evidence)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPendingFinance, got.Status)
	assert.Equal(t, domain.RefundStatus(""), got.PriorStatus)

	stored, err := f.refundRepo.GetByID(ctx, "tenant-1", req.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Evidence, 1)
	assert.Contains(t, stored.CustomerNotes, "Claim attached")
}

func TestApprovalService_NeedsInfoBeforeDecisionChain(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()

	for _, status := range []domain.RefundStatus{domain.RefundStatusPendingReview, domain.RefundStatusUnderInvestigation} {
		t.Run(string(status), func(t *testing.T) {
			req := f.seedRequest(status, calcSnapshot("5000", "0"))

			got, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
				ActorID:  "fin-1",
				Decision: domain.ApprovalDecisionNeedsInfo,
				Notes:    "Photos of the damage, please",
			})
			require.NoError(t, err)
			assert.Equal(t, domain.RefundStatusNeedsInfo, got.Status)
			assert.Equal(t, status, got.PriorStatus)

			row := f.approvalRepo.rows[len(f.approvalRepo.rows)-1]
			assert.Equal(t, domain.ApprovalDecisionNeedsInfo, row.Decision)
			assert.Equal(t, domain.ApprovalLevelFinance, row.ApprovalLevel)

			// The resubmission lands back where the request left off.
			got, err = f.svc.ResubmitInfo(ctx, "tenant-1", req.ID, "cust-1", "Photos attached", nil)
			require.NoError(t, err)
			assert.Equal(t, status, got.Status)
		})
	}

	// Approving or rejecting still waits for the decision chain.
	req := f.seedRequest(domain.RefundStatusPendingReview, calcSnapshot("5000", "0"))
	_, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "fin-1",
		Decision: domain.ApprovalDecisionApproved,
	})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestApprovalService_ResubmitInfoLosesStatusRace(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("5000", "0"))

	_, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "fin-1",
		Decision: domain.ApprovalDecisionNeedsInfo,
	})
	require.NoError(t, err)

	// Another resubmission commits between this caller's read and its
	// swap; the stale swap fails instead of overwriting it.
	raced := false
	f.refundRepo.BeforeUpdateStatus = func() {
		if raced {
			return
		}
		raced = true
		f.refundRepo.rows[req.ID].Status = domain.RefundStatusPendingFinance
		f.refundRepo.rows[req.ID].PriorStatus = ""
	}

	_, err = f.svc.ResubmitInfo(ctx, "tenant-1", req.ID, "cust-1", "Resent", nil)
	require.ErrorIs(t, err, domain.ErrConcurrentModification)

	stored, err := f.refundRepo.GetByID(ctx, "tenant-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPendingFinance, stored.Status)
}

func TestApprovalService_RejectIsTerminal(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("5000", "0"))

	got, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:  "fin-1",
		Decision: domain.ApprovalDecisionRejected,
		Notes:    "No basis for refund",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusRejected, got.Status)

	_, err = f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{ActorID: "fin-1", Decision: domain.ApprovalDecisionApproved})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestApprovalService_RequesterCannotDecide(t *testing.T) {
	f := newApprovalFixture(testConfig())
	req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("5000", "0"))

	_, err := f.svc.RecordDecision(context.Background(), "tenant-1", req.ID, DecisionInput{
		ActorID:  "cust-1",
		Decision: domain.ApprovalDecisionApproved,
	})
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestApprovalService_AdjustedAmountRecorded(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("5000", "0"))

	adjusted := dec("4500")
	_, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{
		ActorID:        "fin-1",
		Decision:       domain.ApprovalDecisionApproved,
		AdjustedAmount: &adjusted,
	})
	require.NoError(t, err)
	require.Len(t, f.approvalRepo.rows, 1)
	require.NotNil(t, f.approvalRepo.rows[0].AdjustedAmount)
	assert.True(t, f.approvalRepo.rows[0].AdjustedAmount.Equal(dec("4500")))
}

func TestApprovalService_ProcessRefundSkipsDebitWithoutLoss(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusApproved, calcSnapshot("5000", "0"))

	got, err := f.svc.ProcessRefund(ctx, "tenant-1", req.ID, "fin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusProcessing, got.Status)
	assert.Equal(t, 0, f.fundRepo.appends, "no company loss means no ledger debit")
}

func TestApprovalService_ProcessRefundRevertsOnDebitFailure(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()
	req := f.seedRequest(domain.RefundStatusApproved, calcSnapshot("7000", "2000"))

	// An integrity hold blocks the debit; the request must not sit
	// approved with no money movement.
	require.NoError(t, f.fundRepo.PlaceHold(ctx, "tenant-1", "chain review"))

	_, err := f.svc.ProcessRefund(ctx, "tenant-1", req.ID, "fin-1")
	require.ErrorIs(t, err, domain.ErrFundOnHold)

	stored, err := f.refundRepo.GetByID(ctx, "tenant-1", req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusPendingManager, stored.Status)
	assert.Nil(t, stored.ApprovedAt)
}

func TestApprovalService_ProcessRefundRequiresApproved(t *testing.T) {
	f := newApprovalFixture(testConfig())
	req := f.seedRequest(domain.RefundStatusPendingManager, calcSnapshot("5000", "100"))

	_, err := f.svc.ProcessRefund(context.Background(), "tenant-1", req.ID, "fin-1")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestApprovalService_GetWorkflowStatus(t *testing.T) {
	f := newApprovalFixture(testConfig())
	ctx := context.Background()

	t.Run("base chain", func(t *testing.T) {
		req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("5000", "0"))
		_, err := f.svc.RecordDecision(ctx, "tenant-1", req.ID, DecisionInput{ActorID: "fin-1", Decision: domain.ApprovalDecisionApproved})
		require.NoError(t, err)

		status, err := f.svc.GetWorkflowStatus(ctx, "tenant-1", req.ID)
		require.NoError(t, err)
		assert.Equal(t, []int32{domain.ApprovalLevelFinance, domain.ApprovalLevelManager}, status.RequiredLevels)
		assert.Equal(t, []int32{domain.ApprovalLevelFinance}, status.CompletedLevels)
		assert.Empty(t, status.EscalationReasons)
	})

	t.Run("escalated chain", func(t *testing.T) {
		req := f.seedRequest(domain.RefundStatusPendingFinance, calcSnapshot("6000000", "2500000"))

		status, err := f.svc.GetWorkflowStatus(ctx, "tenant-1", req.ID)
		require.NoError(t, err)
		assert.Equal(t, []int32{domain.ApprovalLevelFinance, domain.ApprovalLevelManager, domain.ApprovalLevelExecutive}, status.RequiredLevels)
		assert.Contains(t, status.EscalationReasons, "refundable_above_executive_threshold")
		assert.Contains(t, status.EscalationReasons, "critical_company_loss")
		assert.Contains(t, status.EscalationReasons, "company_loss_above_manager_threshold")
	})
}
