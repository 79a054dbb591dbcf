package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a workflow or negotiation move
	// is not allowed from the record's current state.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConcurrentModification is returned when a compare-and-swap on a
	// status, round, or ledger sequence finds the record already changed.
	// The caller must refetch and retry.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrNegotiationClosed is returned for any offer against a negotiation
	// in a terminal state (accepted, rejected, or expired).
	ErrNegotiationClosed = errors.New("negotiation is closed")

	// ErrLedgerIntegrity is raised by chain replay when a
	// balance_before/balance_after link is broken. It is never corrected
	// automatically; the tenant's fund is placed on hold.
	ErrLedgerIntegrity = errors.New("insurance fund balance chain is broken")

	// ErrFundOnHold blocks ledger writes for a tenant whose chain failed
	// verification, until the hold is cleared manually.
	ErrFundOnHold = errors.New("insurance fund is on integrity hold")

	ErrNotFound     = errors.New("record not found")
	ErrUnauthorized = errors.New("actor is not authorized for this action")
)

// ValidationError reports a bad input value, rejected before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// CalculationError reports malformed inputs to the refund calculation
// engine. Nothing is persisted when one is raised.
type CalculationError struct {
	Field  string
	Reason string
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("refund calculation rejected %s: %s", e.Field, e.Reason)
}
