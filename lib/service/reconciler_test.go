package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shauritanga/rtexpress-payments/common"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to string }{
		{common.PaymentStatusPending, common.PaymentStatusProcessing},
		{common.PaymentStatusPending, common.PaymentStatusCompleted},
		{common.PaymentStatusPending, common.PaymentStatusFailed},
		{common.PaymentStatusProcessing, common.PaymentStatusCompleted},
		{common.PaymentStatusProcessing, common.PaymentStatusFailed},
		{common.PaymentStatusCompleted, common.PaymentStatusPartiallyRefunded},
		{common.PaymentStatusCompleted, common.PaymentStatusRefunded},
		{common.PaymentStatusPartiallyRefunded, common.PaymentStatusPartiallyRefunded},
		{common.PaymentStatusPartiallyRefunded, common.PaymentStatusRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	denied := []struct{ from, to string }{
		{common.PaymentStatusFailed, common.PaymentStatusCompleted},
		{common.PaymentStatusFailed, common.PaymentStatusPending},
		{common.PaymentStatusCompleted, common.PaymentStatusFailed},
		{common.PaymentStatusCompleted, common.PaymentStatusPending},
		{common.PaymentStatusRefunded, common.PaymentStatusPartiallyRefunded},
		{common.PaymentStatusRefunded, common.PaymentStatusCompleted},
		{common.PaymentStatusProcessing, common.PaymentStatusPending},
		{common.PaymentStatusPartiallyRefunded, common.PaymentStatusCompleted},
	}
	for _, tc := range denied {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be denied", tc.from, tc.to)
	}
}

func TestSameStateIsNotATransition(t *testing.T) {
	// partially_refunded -> partially_refunded is the one legal self loop,
	// for a second partial refund on the same payment
	assert.False(t, CanTransition(common.PaymentStatusCompleted, common.PaymentStatusCompleted))
	assert.False(t, CanTransition(common.PaymentStatusFailed, common.PaymentStatusFailed))
	assert.True(t, CanTransition(common.PaymentStatusPartiallyRefunded, common.PaymentStatusPartiallyRefunded))
}
