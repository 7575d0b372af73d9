package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {

		if db.Dialect().Name().String() != "pg" {
			fmt.Printf("\033[1;31m%s\033[0m", "You are not using PostgreSQL. DB level checks can not be enabled!\n")
			return nil
		}
		sql := `
			-- the dedupe claim: only one row per delivered gateway event
				ALTER TABLE gateway_events
				ADD CONSTRAINT uq_gateway_events_gateway_event_id
				UNIQUE (gateway, event_id);

			-- one outcome per idempotency key, the insert is the check-and-set
				ALTER TABLE idempotency_records
				ADD CONSTRAINT uq_idempotency_records_key
				UNIQUE (key);

			-- a gateway transaction id maps to exactly one payment
				CREATE UNIQUE INDEX uq_payments_gateway_tx_id
				ON payments (gateway, gateway_tx_id)
				WHERE gateway_tx_id IS NOT NULL;

			-- the ledger must never owe the customer money
				ALTER TABLE invoices
				ADD CONSTRAINT check_balance_due_non_negative
				CHECK (balance_due >= 0);

				ALTER TABLE invoices
				ADD CONSTRAINT check_balance_due_consistent
				CHECK (balance_due = total_amount - paid_amount);

			-- a payment can never refund more than was collected
				ALTER TABLE payments
				ADD CONSTRAINT check_refunded_amount
				CHECK (refunded_amount >= 0 AND refunded_amount <= amount);
			`
		_, err := db.Exec(sql)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		return nil
	})
}
