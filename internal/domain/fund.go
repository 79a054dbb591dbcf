package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type FundTransactionType string

const (
	FundTransactionContribution FundTransactionType = "contribution"
	FundTransactionWithdrawal   FundTransactionType = "withdrawal"
)

// InsuranceFundTransaction is one movement in a tenant's insurance fund.
// The ledger is append-only: rows are never updated or deleted, and
// corrections are offsetting transactions. Seq orders the per-tenant chain;
// BalanceBefore of row n must equal BalanceAfter of row n-1.
type InsuranceFundTransaction struct {
	Seq             int64               `json:"seq"`
	ID              string              `json:"id"`
	TenantID        string              `json:"tenant_id"`
	OrderID         *string             `json:"order_id,omitempty"`
	RefundRequestID *string             `json:"refund_request_id,omitempty"`
	TransactionType FundTransactionType `json:"transaction_type"`

	Amount decimal.Decimal `json:"amount"`
	// ShortfallAmount is non-zero only on withdrawals that were floored at
	// a zero balance; it is the slice of Amount the fund could not cover.
	ShortfallAmount decimal.Decimal `json:"shortfall_amount"`

	Description   string          `json:"description"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedAt     time.Time       `json:"created_at"`
}

// FundStatistics summarizes a tenant's fund activity over a period.
type FundStatistics struct {
	CurrentBalance     decimal.Decimal `json:"current_balance"`
	TotalContributions decimal.Decimal `json:"total_contributions"`
	TotalWithdrawals   decimal.Decimal `json:"total_withdrawals"`
	NetChange          decimal.Decimal `json:"net_change"`
	TransactionCount   int32           `json:"transaction_count"`
	ContributionCount  int32           `json:"contribution_count"`
	WithdrawalCount    int32           `json:"withdrawal_count"`
	PeriodStart        time.Time       `json:"period_start"`
	PeriodEnd          time.Time       `json:"period_end"`
}
