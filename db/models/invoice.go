package models

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Invoice : Invoice Model
//
// Amounts are in the currency's minor unit. balance_due is maintained as
// total_amount - paid_amount and never goes negative; the ledger is the only
// writer of paid_amount and balance_due.
type Invoice struct {
	ID          int64        `json:"id" bun:",pk,autoincrement"`
	CustomerRef string       `json:"customer_ref" bun:",notnull"`
	Currency    string       `json:"currency" bun:",notnull"`
	TotalAmount int64        `json:"total_amount" bun:",notnull"`
	PaidAmount  int64        `json:"paid_amount" bun:",notnull,default:0"`
	BalanceDue  int64        `json:"balance_due" bun:",notnull"`
	Status      string       `json:"status" bun:",notnull,default:'draft'"`
	CreatedAt   time.Time    `json:"created_at" bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt   bun.NullTime `json:"updated_at"`
}

func (i *Invoice) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	switch query.(type) {
	case *bun.UpdateQuery:
		i.UpdatedAt = bun.NullTime{Time: time.Now()}
	}
	return nil
}

var _ bun.BeforeAppendModelHook = (*Invoice)(nil)
