package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// FaultParty identifies who bears responsibility for the refund episode.
type FaultParty string

const (
	FaultPartyCustomer FaultParty = "customer"
	FaultPartyVendor   FaultParty = "vendor"
	FaultPartyCompany  FaultParty = "company"
)

// RefundCalculation is the typed settlement snapshot attached to a refund
// request. Amounts are rounded half-up to two decimal places at
// calculation time; RefundableToCustomer + RetainedByCompany always equals
// the amount the customer paid.
type RefundCalculation struct {
	RefundableToCustomer decimal.Decimal `json:"refundable_to_customer"`
	VendorRecoverable    decimal.Decimal `json:"vendor_recoverable"`
	CompanyLoss          decimal.Decimal `json:"company_loss"`
	RetainedByCompany    decimal.Decimal `json:"retained_by_company"`

	RiskLevel    RiskLevel  `json:"risk_level"`
	FaultParty   FaultParty `json:"fault_party"`
	AppliedRules []string   `json:"applied_rules"`

	CalculatedAt time.Time `json:"calculated_at"`
	CalculatedBy string    `json:"calculated_by"`
}
