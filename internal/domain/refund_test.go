package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefundStatusCanTransition(t *testing.T) {
	t.Run("Happy path chain", func(t *testing.T) {
		chain := []RefundStatus{
			RefundStatusPendingReview,
			RefundStatusUnderInvestigation,
			RefundStatusPendingFinance,
			RefundStatusPendingManager,
			RefundStatusApproved,
			RefundStatusProcessing,
			RefundStatusCompleted,
		}
		for i := 0; i < len(chain)-1; i++ {
			assert.True(t, chain[i].CanTransition(chain[i+1]), "%s -> %s", chain[i], chain[i+1])
		}
	})

	t.Run("Executive escalation", func(t *testing.T) {
		assert.True(t, RefundStatusPendingManager.CanTransition(RefundStatusPendingExecutive))
		assert.True(t, RefundStatusPendingExecutive.CanTransition(RefundStatusApproved))
		assert.True(t, RefundStatusPendingExecutive.CanTransition(RefundStatusRejected))
	})

	t.Run("Needs info from any pending state", func(t *testing.T) {
		for _, s := range []RefundStatus{
			RefundStatusPendingReview,
			RefundStatusUnderInvestigation,
			RefundStatusPendingFinance,
			RefundStatusPendingManager,
			RefundStatusPendingExecutive,
		} {
			assert.True(t, s.CanTransition(RefundStatusNeedsInfo), "from %s", s)
			assert.True(t, RefundStatusNeedsInfo.CanTransition(s), "back to %s", s)
		}
	})

	t.Run("Terminal states allow nothing", func(t *testing.T) {
		all := []RefundStatus{
			RefundStatusPendingReview, RefundStatusUnderInvestigation,
			RefundStatusPendingFinance, RefundStatusPendingManager,
			RefundStatusPendingExecutive, RefundStatusNeedsInfo,
			RefundStatusApproved, RefundStatusRejected,
			RefundStatusProcessing, RefundStatusCompleted,
		}
		for _, to := range all {
			assert.False(t, RefundStatusCompleted.CanTransition(to))
			assert.False(t, RefundStatusRejected.CanTransition(to))
		}
	})

	t.Run("No skipping finance", func(t *testing.T) {
		assert.False(t, RefundStatusPendingReview.CanTransition(RefundStatusPendingManager))
		assert.False(t, RefundStatusPendingFinance.CanTransition(RefundStatusApproved))
		assert.False(t, RefundStatusPendingReview.CanTransition(RefundStatusApproved))
	})

	t.Run("Debit failure revert path", func(t *testing.T) {
		assert.True(t, RefundStatusApproved.CanTransition(RefundStatusPendingManager))
	})
}

func TestRefundStatusPredicates(t *testing.T) {
	assert.True(t, RefundStatusCompleted.IsTerminal())
	assert.True(t, RefundStatusRejected.IsTerminal())
	assert.False(t, RefundStatusApproved.IsTerminal())

	assert.True(t, RefundStatusPendingFinance.IsPending())
	assert.False(t, RefundStatusNeedsInfo.IsPending())
	assert.False(t, RefundStatusProcessing.IsPending())
}

func TestRefundEnums(t *testing.T) {
	assert.True(t, RefundReasonQualityIssue.Valid())
	assert.False(t, RefundReason("store_credit").Valid())
	assert.True(t, RefundTypePartial.Valid())
	assert.False(t, RefundType("chargeback").Valid())
}
