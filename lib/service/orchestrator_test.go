package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shauritanga/rtexpress-payments/common"
)

func TestInvoicePayable(t *testing.T) {
	assert.True(t, invoicePayable(common.InvoiceStatusSent))
	assert.True(t, invoicePayable(common.InvoiceStatusViewed))
	assert.True(t, invoicePayable(common.InvoiceStatusPartial))
	assert.True(t, invoicePayable(common.InvoiceStatusOverdue))

	assert.False(t, invoicePayable(common.InvoiceStatusDraft))
	assert.False(t, invoicePayable(common.InvoiceStatusPaid))
	assert.False(t, invoicePayable(common.InvoiceStatusCancelled))
}

func TestSyntheticEventIds(t *testing.T) {
	succeeded := syntheticEvent("stripe", common.EventTypeChargeSucceeded, "ch_1", 1000, "USD")
	failed := syntheticEvent("stripe", common.EventTypeChargeFailed, "ch_1", 1000, "USD")

	// a success and a failure report for the same transaction must not
	// collide on the event dedupe key
	assert.NotEqual(t, succeeded.EventID, failed.EventID)
	assert.Equal(t, "ch_1", succeeded.GatewayTxID)
	assert.Equal(t, common.EventTypeChargeSucceeded, succeeded.Type)
}
