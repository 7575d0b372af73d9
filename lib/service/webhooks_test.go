package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shauritanga/rtexpress-payments/common"
)

func TestHandledEventType(t *testing.T) {
	for _, eventType := range []string{
		common.EventTypeChargeSucceeded,
		common.EventTypeChargeFailed,
		common.EventTypeChargePending,
		common.EventTypeRefundSucceeded,
		common.EventTypeRefundFailed,
	} {
		assert.True(t, handledEventType(eventType), eventType)
	}

	// anything the reconciler has no path for gets acked, not claimed
	assert.False(t, handledEventType("customer.created"))
	assert.False(t, handledEventType("balance.result"))
	assert.False(t, handledEventType(""))
}
