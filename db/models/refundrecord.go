package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// RefundRecord : one refund against a payment
type RefundRecord struct {
	ID              int64        `json:"id" bun:",pk,autoincrement"`
	PaymentID       int64        `json:"payment_id" bun:",notnull"`
	Payment         *Payment     `json:"-" bun:"rel:belongs-to,join:payment_id=id"`
	Amount          int64        `json:"amount" bun:",notnull"`
	Reason          string       `json:"reason" bun:",nullzero"`
	Status          string       `json:"status" bun:",notnull,default:'requested'"`
	GatewayRefundID string       `json:"gateway_refund_id" bun:",nullzero"`
	FailureReason   string       `json:"failure_reason,omitempty" bun:",nullzero"`
	CreatedAt       time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt       bun.NullTime `json:"updated_at"`
	SettledAt       bun.NullTime `json:"settled_at"`
}

func (r *RefundRecord) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		r.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

var _ bun.BeforeAppendModelHook = (*RefundRecord)(nil)
