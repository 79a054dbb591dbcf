package domain

import "github.com/shopspring/decimal"

// Order is the read-only view of an order as the settlement core consumes
// it. The core never writes order fields; status changes triggered by
// refund completion are emitted as notification events.
type Order struct {
	ID                        string          `json:"id"`
	TenantID                  string          `json:"tenant_id"`
	OrderNumber               string          `json:"order_number"`
	TotalAmount               decimal.Decimal `json:"total_amount"`
	PaidAmount                decimal.Decimal `json:"paid_amount"`
	VendorCostPaid            decimal.Decimal `json:"vendor_cost_paid"`
	ProductionProgressPercent int32           `json:"production_progress_percent"`
	Currency                  string          `json:"currency"`
	Status                    string          `json:"status"`
}
