package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefundableAmount(t *testing.T) {
	p := &Payment{Amount: 10000, RefundedAmount: 0}
	assert.Equal(t, int64(10000), p.RefundableAmount())

	p.RefundedAmount = 4000
	assert.Equal(t, int64(6000), p.RefundableAmount())

	p.RefundedAmount = 10000
	assert.Equal(t, int64(0), p.RefundableAmount())
}
