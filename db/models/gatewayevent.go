package models

import "time"

// GatewayEvent : archived webhook event
//
// The unique (gateway, event_id) pair doubles as the atomic claim that
// closes the race between concurrent deliveries of the same webhook: the
// first inserter processes, everyone else backs off.
type GatewayEvent struct {
	ID          int64     `json:"id" bun:",pk,autoincrement"`
	Gateway     string    `json:"gateway" bun:",notnull"`
	EventID     string    `json:"event_id" bun:",notnull"`
	Type        string    `json:"type" bun:",notnull"`
	GatewayTxID string    `json:"gateway_transaction_id" bun:",nullzero"`
	RefundTxID  string    `json:"refund_transaction_id" bun:",nullzero"`
	Amount      int64     `json:"amount" bun:",notnull,default:0"`
	Currency    string    `json:"currency" bun:",nullzero"`
	PayloadHash string    `json:"payload_hash" bun:",nullzero"`
	ReceivedAt  time.Time `json:"received_at" bun:",nullzero,notnull,default:current_timestamp"`
}
