package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Payment : Payment Model
//
// One attempt to collect money against an invoice. net_amount is always
// amount - fee_amount. (gateway, gateway_tx_id) is unique once assigned.
// Status transitions are owned by the reconciler; refunded_amount is the
// only field that changes after a payment reaches a terminal state.
type Payment struct {
	ID              int64           `json:"id" bun:",pk,autoincrement"`
	InvoiceID       int64           `json:"invoice_id" bun:",notnull"`
	Invoice         *Invoice        `json:"-" bun:"rel:belongs-to,join:invoice_id=id"`
	CustomerRef     string          `json:"customer_ref" bun:",nullzero"`
	Status          string          `json:"status" bun:",notnull,default:'pending'"`
	Amount          int64           `json:"amount" bun:",notnull"`
	FeeAmount       int64           `json:"fee_amount" bun:",notnull,default:0"`
	NetAmount       int64           `json:"net_amount" bun:",notnull"`
	RefundedAmount  int64           `json:"refunded_amount" bun:",notnull,default:0"`
	Currency        string          `json:"currency" bun:",notnull"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate" bun:"type:numeric(16,8),default:1"`
	Gateway         string          `json:"gateway" bun:",notnull"`
	GatewayTxID     string          `json:"gateway_transaction_id" bun:",nullzero"`
	ClientRequestID string          `json:"client_request_id" bun:",nullzero"`
	FailureReason   string          `json:"failure_reason,omitempty" bun:",nullzero"`
	CreatedAt       time.Time       `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt       bun.NullTime    `json:"updated_at"`
	ProcessedAt     bun.NullTime    `json:"processed_at"`
	FailedAt        bun.NullTime    `json:"failed_at"`
	RefundedAt      bun.NullTime    `json:"refunded_at"`
}

func (p *Payment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		p.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

// RefundableAmount is how much of the payment can still be refunded.
func (p *Payment) RefundableAmount() int64 {
	return p.Amount - p.RefundedAmount
}

var _ bun.BeforeAppendModelHook = (*Payment)(nil)
