package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"xenial-settlement/internal/domain"
	"xenial-settlement/internal/logger"
)

// ExpireStaleNegotiations closes open negotiations whose deadline passed.
// Expiry is also observed lazily on every read and write; the sweep keeps
// rows nobody touches from lingering open forever.
func (jr *JobRunner) ExpireStaleNegotiations() {
	jr.runWithRecovery("ExpireStaleNegotiations", func() {
		ctx := context.Background()
		count, err := jr.services.Negotiation.ExpireStale(ctx, time.Now())
		if err != nil {
			logger.Error("Failed to expire stale negotiations", "error", err)
			return
		}
		logger.Info("Expired stale negotiations", "count", count)
	})
}

// VerifyLedgerChains replays every tenant's insurance fund chain. A broken
// chain places the tenant's fund on hold; the job keeps going so one bad
// tenant does not shadow the rest.
func (jr *JobRunner) VerifyLedgerChains() {
	jr.runWithRecovery("VerifyLedgerChains", func() {
		ctx := context.Background()
		tenants, err := jr.store.ListTenants(ctx)
		if err != nil {
			logger.Error("Failed to list fund tenants", "error", err)
			return
		}

		verified, broken := 0, 0
		for _, tenantID := range tenants {
			if err := jr.services.Fund.VerifyChain(ctx, tenantID); err != nil {
				if errors.Is(err, domain.ErrLedgerIntegrity) {
					broken++
					continue
				}
				logger.Error("Failed to verify ledger chain", "tenant_id", tenantID, "error", err)
				continue
			}
			verified++
		}
		logger.Info("Ledger chain verification finished", "verified", verified, "broken", broken)
	})
}

// CheckFundBalances warns finance about every tenant whose fund sits below
// the minimum balance.
func (jr *JobRunner) CheckFundBalances() {
	jr.runWithRecovery("CheckFundBalances", func() {
		ctx := context.Background()
		minimum := decimal.NewFromFloat(jr.config.Fund.MinimumBalance)
		if !minimum.IsPositive() {
			logger.Info("No minimum fund balance configured, skipping")
			return
		}

		tenants, err := jr.store.ListTenants(ctx)
		if err != nil {
			logger.Error("Failed to list fund tenants", "error", err)
			return
		}

		low := 0
		for _, tenantID := range tenants {
			balance, err := jr.services.Fund.CurrentBalance(ctx, tenantID)
			if err != nil {
				logger.Error("Failed to read fund balance", "tenant_id", tenantID, "error", err)
				continue
			}
			if balance.GreaterThanOrEqual(minimum) {
				continue
			}
			low++
			logger.Warn("Insurance fund below minimum", "tenant_id", tenantID,
				"balance", balance.StringFixed(2), "minimum", minimum.StringFixed(2))
			if jr.config.SMTP.FinanceAlertEmail != "" {
				if err := jr.services.Email.SendLowBalanceAlert(ctx, jr.config.SMTP.FinanceAlertEmail, tenantID, balance, minimum); err != nil {
					logger.Error("Failed to send low balance alert", "tenant_id", tenantID, "error", err)
				}
			}
		}
		logger.Info("Fund balance check finished", "tenants", len(tenants), "below_minimum", low)
	})
}
