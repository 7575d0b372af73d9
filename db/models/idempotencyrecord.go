package models

import (
	"time"

	"github.com/uptrace/bun"
)

// IdempotencyRecord : durable key -> outcome mapping
//
// Keys are either "charge/<client_request_id>" or "<gateway>/<event_id>".
// Records are never overwritten; they may expire after the retention window
// since gateways do not replay indefinitely.
type IdempotencyRecord struct {
	ID        int64        `json:"id" bun:",pk,autoincrement"`
	Key       string       `json:"key" bun:"key,notnull,unique"`
	Outcome   string       `json:"outcome" bun:",notnull"`
	PaymentID int64        `json:"payment_id" bun:",nullzero"`
	CreatedAt time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	ExpiresAt bun.NullTime `json:"expires_at"`
}

const (
	OutcomeProcessed = "processed"
	OutcomeParked    = "parked"
)
