package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/repository"
)

// MockRefundRequestRepo
type MockRefundRequestRepo struct {
	mock.Mock
}

func (m *MockRefundRequestRepo) Create(ctx context.Context, req *domain.RefundRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}
func (m *MockRefundRequestRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.RefundRequest, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefundRequest), args.Error(1)
}
func (m *MockRefundRequestRepo) ListByTenant(ctx context.Context, tenantID string, status string, page, pageSize int32) ([]domain.RefundRequest, int32, error) {
	args := m.Called(ctx, tenantID, status, page, pageSize)
	return args.Get(0).([]domain.RefundRequest), args.Get(1).(int32), args.Error(2)
}
func (m *MockRefundRequestRepo) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.RefundRequest, error) {
	args := m.Called(ctx, tenantID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RefundRequest), args.Error(1)
}
func (m *MockRefundRequestRepo) CountForDay(ctx context.Context, tenantID string, day time.Time) (int32, error) {
	args := m.Called(ctx, tenantID, day)
	return args.Get(0).(int32), args.Error(1)
}
func (m *MockRefundRequestRepo) UpdateCalculation(ctx context.Context, tenantID, id string, calc *domain.RefundCalculation) error {
	args := m.Called(ctx, tenantID, id, calc)
	return args.Error(0)
}
func (m *MockRefundRequestRepo) AppendEvidence(ctx context.Context, tenantID, id string, evidence []domain.EvidenceDocument, notes string) error {
	args := m.Called(ctx, tenantID, id, evidence, notes)
	return args.Error(0)
}
func (m *MockRefundRequestRepo) UpdateStatus(ctx context.Context, req *domain.RefundRequest, expected domain.RefundStatus) error {
	args := m.Called(ctx, req, expected)
	return args.Error(0)
}

// MockRefundApprovalRepo
type MockRefundApprovalRepo struct {
	mock.Mock
}

func (m *MockRefundApprovalRepo) Create(ctx context.Context, approval *domain.RefundApproval) error {
	args := m.Called(ctx, approval)
	return args.Error(0)
}
func (m *MockRefundApprovalRepo) ListByRequest(ctx context.Context, tenantID, refundRequestID string) ([]domain.RefundApproval, error) {
	args := m.Called(ctx, tenantID, refundRequestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RefundApproval), args.Error(1)
}

// MockOrderRepo
type MockOrderRepo struct {
	mock.Mock
}

func (m *MockOrderRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Order, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Order), args.Error(1)
}

// MockNotificationRepo
type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, note *domain.Notification) error {
	args := m.Called(ctx, note)
	return args.Error(0)
}
func (m *MockNotificationRepo) List(ctx context.Context, tenantID, recipientID string, limit, offset int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, tenantID, recipientID, limit, offset)
	return args.Get(0).([]domain.Notification), args.Get(1).(int32), args.Error(2)
}
func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, tenantID, id string) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// MockApproverRepo
type MockApproverRepo struct {
	mock.Mock
}

func (m *MockApproverRepo) LevelFor(ctx context.Context, tenantID, actorID string) (int32, error) {
	args := m.Called(ctx, tenantID, actorID)
	return args.Get(0).(int32), args.Error(1)
}

// MockNegotiationRepo
type MockNegotiationRepo struct {
	mock.Mock
}

func (m *MockNegotiationRepo) Create(ctx context.Context, n *domain.OrderVendorNegotiation) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
func (m *MockNegotiationRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OrderVendorNegotiation), args.Error(1)
}
func (m *MockNegotiationRepo) ListByOrder(ctx context.Context, tenantID, orderID string) ([]domain.OrderVendorNegotiation, error) {
	args := m.Called(ctx, tenantID, orderID)
	return args.Get(0).([]domain.OrderVendorNegotiation), args.Error(1)
}
func (m *MockNegotiationRepo) Update(ctx context.Context, n *domain.OrderVendorNegotiation, expectedStatus domain.NegotiationStatus, expectedRound int32) error {
	args := m.Called(ctx, n, expectedStatus, expectedRound)
	return args.Error(0)
}
func (m *MockNegotiationRepo) ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int32) ([]domain.OrderVendorNegotiation, error) {
	args := m.Called(ctx, asOf, limit)
	return args.Get(0).([]domain.OrderVendorNegotiation), args.Error(1)
}

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendRefundCompletedNotification(ctx context.Context, email, requestNumber string, amount decimal.Decimal, currency string) error {
	args := m.Called(ctx, email, requestNumber, amount, currency)
	return args.Error(0)
}
func (m *MockEmailService) SendLowBalanceAlert(ctx context.Context, email, tenantID string, balance, minimum decimal.Decimal) error {
	args := m.Called(ctx, email, tenantID, balance, minimum)
	return args.Error(0)
}
func (m *MockEmailService) SendShortfallAlert(ctx context.Context, email, tenantID, reference string, shortfall decimal.Decimal) error {
	args := m.Called(ctx, email, tenantID, reference, shortfall)
	return args.Error(0)
}
func (m *MockEmailService) SendIntegrityHoldAlert(ctx context.Context, email, tenantID, detail string) error {
	args := m.Called(ctx, email, tenantID, detail)
	return args.Error(0)
}
func (m *MockEmailService) SendNegotiationClosedNotification(ctx context.Context, email, orderID, vendorID string, status string, finalAmount decimal.Decimal) error {
	args := m.Called(ctx, email, orderID, vendorID, status, finalAmount)
	return args.Error(0)
}

// fakeTxManager hands the same repositories to the closure, standing in
// for a real transaction boundary.
type fakeTxManager struct {
	repos *repository.Repositories
}

func (m *fakeTxManager) WithinTx(_ context.Context, fn func(r *repository.Repositories) error) error {
	return fn(m.repos)
}

// fakeFundRepo is an in-memory ledger chain honoring the same
// compare-and-append contract as the postgres implementation. BeforeAppend
// runs just before each append attempt, to simulate a concurrent writer.
type fakeFundRepo struct {
	chain        []domain.InsuranceFundTransaction
	holds        map[string]string
	BeforeAppend func(attempt int)
	appends      int
}

func newFakeFundRepo() *fakeFundRepo {
	return &fakeFundRepo{holds: map[string]string{}}
}

func (f *fakeFundRepo) LastTransaction(_ context.Context, tenantID string) (*domain.InsuranceFundTransaction, error) {
	for i := len(f.chain) - 1; i >= 0; i-- {
		if f.chain[i].TenantID == tenantID {
			tx := f.chain[i]
			return &tx, nil
		}
	}
	return nil, nil
}

func (f *fakeFundRepo) maxSeq(tenantID string) int64 {
	var max int64
	for i := range f.chain {
		if f.chain[i].TenantID == tenantID && f.chain[i].Seq > max {
			max = f.chain[i].Seq
		}
	}
	return max
}

func (f *fakeFundRepo) AppendTransaction(_ context.Context, tx *domain.InsuranceFundTransaction, expectedSeq int64) error {
	f.appends++
	if f.BeforeAppend != nil {
		f.BeforeAppend(f.appends)
	}
	if f.maxSeq(tx.TenantID) != expectedSeq {
		return domain.ErrConcurrentModification
	}
	tx.Seq = expectedSeq + 1
	f.chain = append(f.chain, *tx)
	return nil
}

func (f *fakeFundRepo) ListTransactions(_ context.Context, tenantID string, txType string, page, pageSize int32) ([]domain.InsuranceFundTransaction, int32, error) {
	var out []domain.InsuranceFundTransaction
	for i := range f.chain {
		if f.chain[i].TenantID == tenantID && (txType == "" || string(f.chain[i].TransactionType) == txType) {
			out = append(out, f.chain[i])
		}
	}
	return out, int32(len(out)), nil
}

func (f *fakeFundRepo) ListChain(_ context.Context, tenantID string) ([]domain.InsuranceFundTransaction, error) {
	var out []domain.InsuranceFundTransaction
	for i := range f.chain {
		if f.chain[i].TenantID == tenantID {
			out = append(out, f.chain[i])
		}
	}
	return out, nil
}

func (f *fakeFundRepo) ListTenants(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for i := range f.chain {
		if !seen[f.chain[i].TenantID] {
			seen[f.chain[i].TenantID] = true
			out = append(out, f.chain[i].TenantID)
		}
	}
	return out, nil
}

func (f *fakeFundRepo) Statistics(_ context.Context, tenantID string, from, to time.Time) (*domain.FundStatistics, error) {
	stats := &domain.FundStatistics{PeriodStart: from, PeriodEnd: to}
	for i := range f.chain {
		tx := &f.chain[i]
		if tx.TenantID != tenantID {
			continue
		}
		stats.TransactionCount++
		if tx.TransactionType == domain.FundTransactionContribution {
			stats.ContributionCount++
			stats.TotalContributions = stats.TotalContributions.Add(tx.Amount)
		} else {
			stats.WithdrawalCount++
			stats.TotalWithdrawals = stats.TotalWithdrawals.Add(tx.Amount.Sub(tx.ShortfallAmount))
		}
		stats.CurrentBalance = tx.BalanceAfter
	}
	stats.NetChange = stats.TotalContributions.Sub(stats.TotalWithdrawals)
	return stats, nil
}

func (f *fakeFundRepo) HasHold(_ context.Context, tenantID string) (bool, error) {
	_, ok := f.holds[tenantID]
	return ok, nil
}

func (f *fakeFundRepo) PlaceHold(_ context.Context, tenantID, reason string) error {
	f.holds[tenantID] = reason
	return nil
}

func (f *fakeFundRepo) ClearHold(_ context.Context, tenantID string) error {
	delete(f.holds, tenantID)
	return nil
}

// fakeRefundRepo is an in-memory refund request store honoring the same
// compare-and-swap status contract as the postgres implementation.
type fakeRefundRepo struct {
	rows map[string]*domain.RefundRequest
	seq  int

	// BeforeUpdateStatus runs just before each status swap, to simulate
	// a concurrent writer racing the caller.
	BeforeUpdateStatus func()
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{rows: map[string]*domain.RefundRequest{}}
}

func cloneRequest(req *domain.RefundRequest) *domain.RefundRequest {
	cp := *req
	cp.Evidence = append([]domain.EvidenceDocument(nil), req.Evidence...)
	if req.Calculation != nil {
		calc := *req.Calculation
		cp.Calculation = &calc
	}
	return &cp
}

func (f *fakeRefundRepo) Create(_ context.Context, req *domain.RefundRequest) error {
	if req.ID == "" {
		f.seq++
		req.ID = fmt.Sprintf("req-%d", f.seq)
	}
	f.rows[req.ID] = cloneRequest(req)
	return nil
}

func (f *fakeRefundRepo) GetByID(_ context.Context, tenantID, id string) (*domain.RefundRequest, error) {
	row, ok := f.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return cloneRequest(row), nil
}

func (f *fakeRefundRepo) ListByTenant(_ context.Context, tenantID string, status string, page, pageSize int32) ([]domain.RefundRequest, int32, error) {
	var out []domain.RefundRequest
	for _, row := range f.rows {
		if row.TenantID == tenantID && (status == "" || string(row.Status) == status) {
			out = append(out, *cloneRequest(row))
		}
	}
	return out, int32(len(out)), nil
}

func (f *fakeRefundRepo) ListByOrder(_ context.Context, tenantID, orderID string) ([]domain.RefundRequest, error) {
	var out []domain.RefundRequest
	for _, row := range f.rows {
		if row.TenantID == tenantID && row.OrderID == orderID {
			out = append(out, *cloneRequest(row))
		}
	}
	return out, nil
}

func (f *fakeRefundRepo) CountForDay(_ context.Context, tenantID string, day time.Time) (int32, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var count int32
	for _, row := range f.rows {
		if row.TenantID == tenantID && !row.RequestedAt.Before(start) && row.RequestedAt.Before(start.Add(24*time.Hour)) {
			count++
		}
	}
	return count, nil
}

func (f *fakeRefundRepo) UpdateCalculation(_ context.Context, tenantID, id string, calc *domain.RefundCalculation) error {
	row, ok := f.rows[id]
	if !ok || row.TenantID != tenantID {
		return domain.ErrNotFound
	}
	cp := *calc
	row.Calculation = &cp
	return nil
}

func (f *fakeRefundRepo) AppendEvidence(_ context.Context, tenantID, id string, evidence []domain.EvidenceDocument, notes string) error {
	row, ok := f.rows[id]
	if !ok || row.TenantID != tenantID {
		return domain.ErrNotFound
	}
	row.Evidence = append(row.Evidence, evidence...)
	if notes != "" {
		if row.CustomerNotes != "" {
			row.CustomerNotes += "\n"
		}
		row.CustomerNotes += notes
	}
	return nil
}

func (f *fakeRefundRepo) UpdateStatus(_ context.Context, req *domain.RefundRequest, expected domain.RefundStatus) error {
	if f.BeforeUpdateStatus != nil {
		f.BeforeUpdateStatus()
	}
	row, ok := f.rows[req.ID]
	if !ok || row.TenantID != req.TenantID {
		return domain.ErrNotFound
	}
	if row.Status != expected {
		return domain.ErrConcurrentModification
	}
	// Only the status columns move, matching the UPDATE the postgres
	// repository issues; evidence and notes written through other calls
	// are not clobbered by the caller's copy of the row.
	row.Status = req.Status
	row.PriorStatus = req.PriorStatus
	row.CurrentApproverID = req.CurrentApproverID
	row.ApprovedAt = req.ApprovedAt
	row.ProcessedAt = req.ProcessedAt
	row.CompletedAt = req.CompletedAt
	return nil
}

// fakeApprovalRepo collects approval rows in decision order.
type fakeApprovalRepo struct {
	rows []domain.RefundApproval
}

func (f *fakeApprovalRepo) Create(_ context.Context, approval *domain.RefundApproval) error {
	if approval.ID == "" {
		approval.ID = fmt.Sprintf("apr-%d", len(f.rows)+1)
	}
	f.rows = append(f.rows, *approval)
	return nil
}

func (f *fakeApprovalRepo) ListByRequest(_ context.Context, tenantID, refundRequestID string) ([]domain.RefundApproval, error) {
	var out []domain.RefundApproval
	for i := range f.rows {
		if f.rows[i].TenantID == tenantID && f.rows[i].RefundRequestID == refundRequestID {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

// fakeApproverRepo grants levels from a static directory.
type fakeApproverRepo struct {
	levels map[string]int32
}

func (f *fakeApproverRepo) LevelFor(_ context.Context, _ string, actorID string) (int32, error) {
	level, ok := f.levels[actorID]
	if !ok || level == 0 {
		return 0, domain.ErrUnauthorized
	}
	return level, nil
}

// fakeNotificationRepo collects notification rows.
type fakeNotificationRepo struct {
	rows []domain.Notification
}

func (f *fakeNotificationRepo) Create(_ context.Context, note *domain.Notification) error {
	if note.ID == "" {
		note.ID = fmt.Sprintf("note-%d", len(f.rows)+1)
	}
	f.rows = append(f.rows, *note)
	return nil
}

func (f *fakeNotificationRepo) List(_ context.Context, tenantID, recipientID string, limit, offset int32) ([]domain.Notification, int32, error) {
	var out []domain.Notification
	for i := range f.rows {
		if f.rows[i].TenantID == tenantID && f.rows[i].RecipientID == recipientID {
			out = append(out, f.rows[i])
		}
	}
	return out, int32(len(out)), nil
}

func (f *fakeNotificationRepo) MarkAsRead(_ context.Context, tenantID, id string) error {
	for i := range f.rows {
		if f.rows[i].TenantID == tenantID && f.rows[i].ID == id {
			f.rows[i].IsRead = true
			return nil
		}
	}
	return domain.ErrNotFound
}

// fakeNegotiationRepo is an in-memory negotiation store honoring the
// status-and-round compare-and-swap contract.
type fakeNegotiationRepo struct {
	rows map[string]*domain.OrderVendorNegotiation
	seq  int
}

func newFakeNegotiationRepo() *fakeNegotiationRepo {
	return &fakeNegotiationRepo{rows: map[string]*domain.OrderVendorNegotiation{}}
}

func cloneNegotiation(n *domain.OrderVendorNegotiation) *domain.OrderVendorNegotiation {
	cp := *n
	cp.History = append([]domain.NegotiationHistoryEntry(nil), n.History...)
	return &cp
}

func (f *fakeNegotiationRepo) Create(_ context.Context, n *domain.OrderVendorNegotiation) error {
	if n.ID == "" {
		f.seq++
		n.ID = fmt.Sprintf("neg-%d", f.seq)
	}
	f.rows[n.ID] = cloneNegotiation(n)
	return nil
}

func (f *fakeNegotiationRepo) GetByID(_ context.Context, tenantID, id string) (*domain.OrderVendorNegotiation, error) {
	row, ok := f.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	return cloneNegotiation(row), nil
}

func (f *fakeNegotiationRepo) ListByOrder(_ context.Context, tenantID, orderID string) ([]domain.OrderVendorNegotiation, error) {
	var out []domain.OrderVendorNegotiation
	for _, row := range f.rows {
		if row.TenantID == tenantID && row.OrderID == orderID {
			out = append(out, *cloneNegotiation(row))
		}
	}
	return out, nil
}

func (f *fakeNegotiationRepo) Update(_ context.Context, n *domain.OrderVendorNegotiation, expectedStatus domain.NegotiationStatus, expectedRound int32) error {
	row, ok := f.rows[n.ID]
	if !ok || row.TenantID != n.TenantID {
		return domain.ErrNotFound
	}
	if row.Status != expectedStatus || row.Round != expectedRound {
		return domain.ErrConcurrentModification
	}
	f.rows[n.ID] = cloneNegotiation(n)
	return nil
}

func (f *fakeNegotiationRepo) ListExpiredCandidates(_ context.Context, asOf time.Time, limit int32) ([]domain.OrderVendorNegotiation, error) {
	var out []domain.OrderVendorNegotiation
	for _, row := range f.rows {
		if int32(len(out)) >= limit {
			break
		}
		if row.Status.Open() && row.ExpiresAt.Before(asOf) {
			out = append(out, *cloneNegotiation(row))
		}
	}
	return out, nil
}
