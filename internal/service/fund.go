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

type fundService struct {
	fundRepo  repository.FundRepository
	orderRepo repository.OrderRepository
	emailSvc  EmailService

	contributionRate decimal.Decimal
	minimumBalance   decimal.Decimal
	appendRetries    int
	alertEmail       string
}

func NewFundService(
	fundRepo repository.FundRepository,
	orderRepo repository.OrderRepository,
	emailSvc EmailService,
	cfg *config.Config,
) FundService {
	return &fundService{
		fundRepo:         fundRepo,
		orderRepo:        orderRepo,
		emailSvc:         emailSvc,
		contributionRate: decimal.NewFromFloat(cfg.Fund.ContributionRate),
		minimumBalance:   decimal.NewFromFloat(cfg.Fund.MinimumBalance),
		appendRetries:    cfg.Fund.AppendRetries,
		alertEmail:       cfg.SMTP.FinanceAlertEmail,
	}
}

// appendFundTransaction reads the chain head, lets build produce the next
// row from the current balance, and appends it guarded by the head's seq.
// A lost race refetches and rebuilds, up to retries attempts.
func appendFundTransaction(
	ctx context.Context,
	fundRepo repository.FundRepository,
	tenantID string,
	retries int,
	build func(balanceBefore decimal.Decimal) (*domain.InsuranceFundTransaction, error),
) (*domain.InsuranceFundTransaction, error) {
	onHold, err := fundRepo.HasHold(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if onHold {
		return nil, domain.ErrFundOnHold
	}

	if retries < 1 {
		retries = 1
	}
	for attempt := 1; ; attempt++ {
		last, err := fundRepo.LastTransaction(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		var expectedSeq int64
		balanceBefore := decimal.Zero
		if last != nil {
			expectedSeq = last.Seq
			balanceBefore = last.BalanceAfter
		}

		tx, err := build(balanceBefore)
		if err != nil {
			return nil, err
		}
		tx.TenantID = tenantID
		tx.BalanceBefore = balanceBefore
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now()
		}

		err = fundRepo.AppendTransaction(ctx, tx, expectedSeq)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, domain.ErrConcurrentModification) || attempt >= retries {
			return nil, err
		}
		logger.Debug("fund append lost race, retrying", "tenant_id", tenantID, "attempt", attempt)
	}
}

func (s *fundService) Contribute(ctx context.Context, tenantID string, in ContributionInput) (*domain.InsuranceFundTransaction, error) {
	if !in.Amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return appendFundTransaction(ctx, s.fundRepo, tenantID, s.appendRetries,
		func(balanceBefore decimal.Decimal) (*domain.InsuranceFundTransaction, error) {
			amount := in.Amount.Round(2)
			return &domain.InsuranceFundTransaction{
				OrderID:         in.OrderID,
				TransactionType: domain.FundTransactionContribution,
				Amount:          amount,
				ShortfallAmount: decimal.Zero,
				Description:     in.Description,
				BalanceAfter:    balanceBefore.Add(amount),
			}, nil
		})
}

// ContributeFromOrder books the standard rate of the order's total into
// the fund, at order payment time.
func (s *fundService) ContributeFromOrder(ctx context.Context, tenantID, orderID string) (*domain.InsuranceFundTransaction, error) {
	order, err := s.orderRepo.GetByID(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	amount := order.TotalAmount.Mul(s.contributionRate)
	return s.Contribute(ctx, tenantID, ContributionInput{
		Amount:      amount,
		OrderID:     &order.ID,
		Description: fmt.Sprintf("Contribution for order %s", order.OrderNumber),
	})
}

// Withdraw debits the fund for a refund payout. When the fund cannot cover
// the full amount the balance floors at zero and the uncovered slice is
// recorded as a shortfall; finance is alerted but the withdrawal is not
// blocked.
func (s *fundService) Withdraw(ctx context.Context, tenantID string, in WithdrawalInput) (*domain.InsuranceFundTransaction, error) {
	if !in.Amount.IsPositive() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	tx, err := withdrawFromFund(ctx, s.fundRepo, tenantID, in, s.appendRetries)
	if err != nil {
		return nil, err
	}

	if tx.ShortfallAmount.IsPositive() && s.alertEmail != "" {
		reference := ""
		if in.RefundRequestID != nil {
			reference = *in.RefundRequestID
		}
		if mailErr := s.emailSvc.SendShortfallAlert(ctx, s.alertEmail, tenantID, reference, tx.ShortfallAmount); mailErr != nil {
			logger.Warn("failed to send shortfall alert", "tenant_id", tenantID, "error", mailErr)
		}
	}
	s.alertIfBelowMinimum(ctx, tenantID, tx.BalanceAfter)
	return tx, nil
}

// withdrawFromFund appends a withdrawal row, flooring the balance at zero
// and recording the uncovered slice as a shortfall. It is shared with the
// workflow's transactional debit.
func withdrawFromFund(ctx context.Context, fundRepo repository.FundRepository, tenantID string, in WithdrawalInput, retries int) (*domain.InsuranceFundTransaction, error) {
	return appendFundTransaction(ctx, fundRepo, tenantID, retries,
		func(balanceBefore decimal.Decimal) (*domain.InsuranceFundTransaction, error) {
			amount := in.Amount.Round(2)
			after := balanceBefore.Sub(amount)
			shortfall := decimal.Zero
			if after.IsNegative() {
				shortfall = after.Neg()
				after = decimal.Zero
			}
			return &domain.InsuranceFundTransaction{
				RefundRequestID: in.RefundRequestID,
				TransactionType: domain.FundTransactionWithdrawal,
				Amount:          amount,
				ShortfallAmount: shortfall,
				Description:     in.Description,
				BalanceAfter:    after,
			}, nil
		})
}

func (s *fundService) alertIfBelowMinimum(ctx context.Context, tenantID string, balance decimal.Decimal) {
	if s.alertEmail == "" || !s.minimumBalance.IsPositive() || balance.GreaterThanOrEqual(s.minimumBalance) {
		return
	}
	if err := s.emailSvc.SendLowBalanceAlert(ctx, s.alertEmail, tenantID, balance, s.minimumBalance); err != nil {
		logger.Warn("failed to send low balance alert", "tenant_id", tenantID, "error", err)
	}
}

func (s *fundService) CurrentBalance(ctx context.Context, tenantID string) (decimal.Decimal, error) {
	last, err := s.fundRepo.LastTransaction(ctx, tenantID)
	if err != nil {
		return decimal.Zero, err
	}
	if last == nil {
		return decimal.Zero, nil
	}
	return last.BalanceAfter, nil
}

func (s *fundService) ListTransactions(ctx context.Context, tenantID, txType string, page, pageSize int32) ([]domain.InsuranceFundTransaction, int32, error) {
	return s.fundRepo.ListTransactions(ctx, tenantID, txType, page, pageSize)
}

func (s *fundService) Statistics(ctx context.Context, tenantID string, from, to time.Time) (*domain.FundStatistics, error) {
	return s.fundRepo.Statistics(ctx, tenantID, from, to)
}

// VerifyChain replays the full ledger from seq 1 and checks every balance
// link. Verification never repairs anything; a broken chain places the
// tenant's fund on hold until finance clears it.
func (s *fundService) VerifyChain(ctx context.Context, tenantID string) error {
	chain, err := s.fundRepo.ListChain(ctx, tenantID)
	if err != nil {
		return err
	}

	running := decimal.Zero
	for i := range chain {
		tx := &chain[i]
		if !tx.BalanceBefore.Equal(running) {
			return s.holdChain(ctx, tenantID, fmt.Sprintf(
				"seq %d: balance_before %s does not match prior balance_after %s",
				tx.Seq, tx.BalanceBefore.String(), running.String()))
		}
		var expected decimal.Decimal
		switch tx.TransactionType {
		case domain.FundTransactionContribution:
			if tx.ShortfallAmount.IsPositive() {
				return s.holdChain(ctx, tenantID, fmt.Sprintf(
					"seq %d: contribution carries shortfall %s", tx.Seq, tx.ShortfallAmount.String()))
			}
			expected = running.Add(tx.Amount)
		case domain.FundTransactionWithdrawal:
			// The shortfall is derived from the replayed balance, never
			// trusted from the row: balance_after must equal
			// max(0, balance_before - amount).
			shortfall := tx.Amount.Sub(running)
			if shortfall.IsNegative() {
				shortfall = decimal.Zero
			}
			if !tx.ShortfallAmount.Equal(shortfall) {
				return s.holdChain(ctx, tenantID, fmt.Sprintf(
					"seq %d: shortfall %s does not match replayed shortfall %s",
					tx.Seq, tx.ShortfallAmount.String(), shortfall.String()))
			}
			expected = running.Sub(tx.Amount).Add(shortfall)
		default:
			return s.holdChain(ctx, tenantID, fmt.Sprintf("seq %d: unknown transaction type %q", tx.Seq, tx.TransactionType))
		}
		if !tx.BalanceAfter.Equal(expected) {
			return s.holdChain(ctx, tenantID, fmt.Sprintf(
				"seq %d: balance_after %s does not match replayed balance %s",
				tx.Seq, tx.BalanceAfter.String(), expected.String()))
		}
		running = tx.BalanceAfter
	}
	return nil
}

func (s *fundService) holdChain(ctx context.Context, tenantID, detail string) error {
	logger.Error("insurance fund chain verification failed", "tenant_id", tenantID, "detail", detail)
	if err := s.fundRepo.PlaceHold(ctx, tenantID, detail); err != nil {
		return fmt.Errorf("place hold: %w", err)
	}
	if s.alertEmail != "" {
		if err := s.emailSvc.SendIntegrityHoldAlert(ctx, s.alertEmail, tenantID, detail); err != nil {
			logger.Warn("failed to send integrity hold alert", "tenant_id", tenantID, "error", err)
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrLedgerIntegrity, detail)
}

func (s *fundService) ClearHold(ctx context.Context, tenantID string) error {
	return s.fundRepo.ClearHold(ctx, tenantID)
}
