package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChargeIdempotencyKey(t *testing.T) {
	assert.Equal(t, "charge/req-123", ChargeIdempotencyKey("req-123"))
}

func TestEventIdempotencyKey(t *testing.T) {
	assert.Equal(t, "stripe/evt_1", EventIdempotencyKey("stripe", "evt_1"))
}

func TestKeyNamespacesDoNotCollide(t *testing.T) {
	// a gateway event id equal to a client request id must map to a
	// different key
	assert.NotEqual(t, ChargeIdempotencyKey("abc"), EventIdempotencyKey("charge", "abc"))
	assert.NotEqual(t, EventIdempotencyKey("stripe", "abc"), EventIdempotencyKey("paypal", "abc"))
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.True(t, isUniqueConstraintError(errors.New(`ERROR: duplicate key value violates unique constraint "idempotency_records_key_key" (SQLSTATE=23505)`)))
	assert.False(t, isUniqueConstraintError(errors.New("connection refused")))
	assert.False(t, isUniqueConstraintError(nil))
}
