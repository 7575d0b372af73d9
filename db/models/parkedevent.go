package models

import "time"

// ParkedEvent : gateway event set aside for manual review
//
// Stale, reordered or otherwise ambiguous events land here instead of being
// guessed at or silently dropped.
type ParkedEvent struct {
	ID          int64     `json:"id" bun:",pk,autoincrement"`
	Gateway     string    `json:"gateway" bun:",notnull"`
	EventID     string    `json:"event_id" bun:",notnull"`
	Type        string    `json:"type" bun:",notnull"`
	GatewayTxID string    `json:"gateway_transaction_id" bun:",nullzero"`
	Reason      string    `json:"reason" bun:",notnull"`
	PayloadHash string    `json:"payload_hash" bun:",nullzero"`
	CreatedAt   time.Time `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
}
