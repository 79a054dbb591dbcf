package utils

import (
	"time"

	"xenial-settlement/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	zero    = decimal.Zero
)

// RefundPolicy carries the configurable parts of the settlement rules.
type RefundPolicy struct {
	// PartialRefundPercent is the percentage of the paid amount refunded
	// for the policy-table reasons (timeline delay, production error,
	// shipping damage). Quality and customer-request refunds are computed
	// from the request itself and do not consult this table.
	PartialRefundPercent map[domain.RefundReason]decimal.Decimal

	// Risk classification thresholds on companyLoss / orderTotal.
	RiskLowMax    decimal.Decimal
	RiskMediumMax decimal.Decimal
}

// RefundInput is everything the settlement calculation reads. All fields
// come from the order snapshot and the refund request; the calculation
// itself has no side effects.
type RefundInput struct {
	OrderTotal         decimal.Decimal
	CustomerPaid       decimal.Decimal
	VendorCostPaid     decimal.Decimal
	ProductionProgress int32
	Reason             domain.RefundReason
	// QualityIssuePercentage is meaningful only for quality_issue refunds.
	QualityIssuePercentage *int32
}

// CalculateRefund computes the settlement split for a refund request:
// what goes back to the customer, what is clawed back from the vendor,
// and what the company absorbs from the insurance fund.
//
// Intermediate arithmetic is exact; amounts are rounded half-up to two
// decimal places only at the output, and the retained amount is derived
// from the rounded refund so that refundable + retained always equals the
// customer's paid amount to the cent.
func CalculateRefund(in RefundInput, policy RefundPolicy, calculatedBy string) (*domain.RefundCalculation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var (
		refundable decimal.Decimal
		recoverable = zero
		loss        = zero
		fault       domain.FaultParty
		rules       []string
	)

	switch in.Reason {
	case domain.RefundReasonCustomerRequest:
		// The customer absorbs the work already done: refund shrinks in
		// proportion to production progress.
		progress := decimal.NewFromInt32(in.ProductionProgress).Div(hundred)
		refundable = in.CustomerPaid.Mul(decimal.NewFromInt(1).Sub(progress))
		fault = domain.FaultPartyCustomer
		rules = append(rules, "progress_proportional_retention")

	case domain.RefundReasonQualityIssue:
		q := decimal.NewFromInt32(*in.QualityIssuePercentage).Div(hundred)
		refundable = in.CustomerPaid.Mul(q)
		recoverable = in.VendorCostPaid.Mul(q)
		fault = domain.FaultPartyVendor
		rules = append(rules, "quality_proportional_liability")

	case domain.RefundReasonVendorFailure:
		refundable = in.CustomerPaid
		recoverable = in.VendorCostPaid
		fault = domain.FaultPartyVendor
		rules = append(rules, "full_refund_vendor_liability")

	case domain.RefundReasonTimelineDelay, domain.RefundReasonProductionError, domain.RefundReasonShippingDamage:
		pct, ok := policy.PartialRefundPercent[in.Reason]
		if !ok {
			return nil, &domain.CalculationError{Field: "reason", Reason: "no partial refund percentage configured for " + string(in.Reason)}
		}
		refundable = in.CustomerPaid.Mul(pct.Div(hundred))
		fault = domain.FaultPartyCompany
		rules = append(rules, "policy_table_percentage")

	default:
		return nil, &domain.CalculationError{Field: "reason", Reason: "unknown refund reason " + string(in.Reason)}
	}

	refundable = refundable.Round(2)
	retained := in.CustomerPaid.Sub(refundable)
	recoverable = recoverable.Round(2)

	switch in.Reason {
	case domain.RefundReasonCustomerRequest:
		// Vendor money already spent that the retained amount does not
		// cover is the company's loss.
		if shortfall := in.VendorCostPaid.Sub(retained); shortfall.IsPositive() {
			loss = shortfall
			rules = append(rules, "retained_amount_shortfall_loss")
		}
	case domain.RefundReasonQualityIssue:
		if gap := refundable.Sub(recoverable); gap.IsPositive() {
			loss = gap
		}
	case domain.RefundReasonVendorFailure:
		// Full recovery is assumed; uncollectable amounts are reconciled
		// operationally with offsetting fund transactions.
		loss = zero
	default:
		// Company-fault categories fund the whole refund from the pool.
		loss = refundable
	}
	loss = loss.Round(2)

	calc := &domain.RefundCalculation{
		RefundableToCustomer: refundable,
		VendorRecoverable:    recoverable,
		CompanyLoss:          loss,
		RetainedByCompany:    retained,
		RiskLevel:            classifyRisk(loss, in.OrderTotal, policy),
		FaultParty:           fault,
		AppliedRules:         rules,
		CalculatedAt:         time.Now().UTC(),
		CalculatedBy:         calculatedBy,
	}
	return calc, nil
}

func validateInput(in RefundInput) error {
	if in.OrderTotal.Sign() <= 0 {
		return &domain.CalculationError{Field: "orderTotal", Reason: "must be positive"}
	}
	if in.CustomerPaid.Sign() < 0 {
		return &domain.CalculationError{Field: "customerPaid", Reason: "must not be negative"}
	}
	if in.VendorCostPaid.Sign() < 0 {
		return &domain.CalculationError{Field: "vendorCostPaid", Reason: "must not be negative"}
	}
	if in.CustomerPaid.GreaterThan(in.OrderTotal) {
		return &domain.CalculationError{Field: "customerPaid", Reason: "exceeds order total"}
	}
	if in.ProductionProgress < 0 || in.ProductionProgress > 100 {
		return &domain.CalculationError{Field: "productionProgress", Reason: "must be between 0 and 100"}
	}
	if in.Reason == domain.RefundReasonQualityIssue {
		if in.QualityIssuePercentage == nil {
			return &domain.CalculationError{Field: "qualityIssuePercentage", Reason: "required for quality_issue refunds"}
		}
		if q := *in.QualityIssuePercentage; q < 0 || q > 100 {
			return &domain.CalculationError{Field: "qualityIssuePercentage", Reason: "must be between 0 and 100"}
		}
	} else if in.QualityIssuePercentage != nil {
		return &domain.CalculationError{Field: "qualityIssuePercentage", Reason: "only meaningful for quality_issue refunds"}
	}
	return nil
}

func classifyRisk(loss, orderTotal decimal.Decimal, policy RefundPolicy) domain.RiskLevel {
	ratio := loss.Div(orderTotal)
	switch {
	case ratio.LessThan(policy.RiskLowMax):
		return domain.RiskLevelLow
	case ratio.LessThan(policy.RiskMediumMax):
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelHigh
	}
}
