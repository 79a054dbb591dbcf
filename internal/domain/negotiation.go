package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type NegotiationStatus string

const (
	NegotiationStatusDraft           NegotiationStatus = "draft"
	NegotiationStatusSent            NegotiationStatus = "sent"
	NegotiationStatusCountered       NegotiationStatus = "countered"
	NegotiationStatusPendingResponse NegotiationStatus = "pending_response"
	NegotiationStatusAccepted        NegotiationStatus = "accepted"
	NegotiationStatusRejected        NegotiationStatus = "rejected"
	NegotiationStatusExpired         NegotiationStatus = "expired"
)

// IsTerminal reports whether the negotiation accepts no further offers.
func (s NegotiationStatus) IsTerminal() bool {
	switch s {
	case NegotiationStatusAccepted, NegotiationStatusRejected, NegotiationStatusExpired:
		return true
	}
	return false
}

// Open reports whether offers or accept/reject actions are allowed.
func (s NegotiationStatus) Open() bool {
	switch s {
	case NegotiationStatusSent, NegotiationStatusCountered, NegotiationStatusPendingResponse:
		return true
	}
	return false
}

type NegotiationParty string

const (
	NegotiationPartyCustomer NegotiationParty = "customer"
	NegotiationPartyVendor   NegotiationParty = "vendor"
)

func (p NegotiationParty) Valid() bool {
	return p == NegotiationPartyCustomer || p == NegotiationPartyVendor
}

type NegotiationEvent string

const (
	NegotiationEventInitialOffer NegotiationEvent = "initial_offer"
	NegotiationEventCounterOffer NegotiationEvent = "counter_offer"
	NegotiationEventAccepted     NegotiationEvent = "accepted"
	NegotiationEventRejected     NegotiationEvent = "rejected"
	NegotiationEventExpired      NegotiationEvent = "expired"
)

// NegotiationHistoryEntry is one append-only entry in a negotiation's
// offer history.
type NegotiationHistoryEntry struct {
	Event      NegotiationEvent `json:"event"`
	Actor      NegotiationParty `json:"actor"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Round      int32            `json:"round"`
	Notes      string           `json:"notes,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// QuoteDetails carries the non-price terms attached to a negotiation.
type QuoteDetails struct {
	DeliveryDays   int32  `json:"delivery_days,omitempty"`
	PaymentTerms   string `json:"payment_terms,omitempty"`
	ShippingMethod string `json:"shipping_method,omitempty"`
	Notes          string `json:"notes,omitempty"`
}

// OrderVendorNegotiation is one price-negotiation session between a tenant
// order and a candidate vendor. Round increases by exactly one per
// counter-offer; once the status is terminal no further offers are
// accepted and ClosedAt is set.
type OrderVendorNegotiation struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	OrderID  string `json:"order_id"`
	VendorID string `json:"vendor_id"`

	Status       NegotiationStatus `json:"status"`
	InitialOffer decimal.Decimal   `json:"initial_offer"`
	LatestOffer  decimal.Decimal   `json:"latest_offer"`
	Currency     string            `json:"currency"`
	QuoteDetails QuoteDetails      `json:"quote_details"`

	History []NegotiationHistoryEntry `json:"history"`
	Round   int32                     `json:"round"`

	ExpiresAt time.Time  `json:"expires_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the negotiation has passed its deadline while
// still open. Expiry is observed lazily; callers finding this true must
// mark the row expired before rejecting the attempted operation.
func (n *OrderVendorNegotiation) Expired(now time.Time) bool {
	return !n.Status.IsTerminal() && n.Status != NegotiationStatusDraft && now.After(n.ExpiresAt)
}
