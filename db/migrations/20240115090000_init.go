package migrations

import (
	"context"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		sql := `
			CREATE TABLE IF NOT EXISTS invoices (
				id BIGSERIAL PRIMARY KEY,
				customer_ref VARCHAR NOT NULL,
				currency VARCHAR(3) NOT NULL,
				total_amount BIGINT NOT NULL,
				paid_amount BIGINT NOT NULL DEFAULT 0,
				balance_due BIGINT NOT NULL,
				status VARCHAR NOT NULL DEFAULT 'draft',
				created_at timestamptz NOT NULL DEFAULT current_timestamp,
				updated_at timestamptz
			);

			CREATE TABLE IF NOT EXISTS payments (
				id BIGSERIAL PRIMARY KEY,
				invoice_id BIGINT NOT NULL REFERENCES invoices (id),
				customer_ref VARCHAR,
				status VARCHAR NOT NULL DEFAULT 'pending',
				amount BIGINT NOT NULL,
				fee_amount BIGINT NOT NULL DEFAULT 0,
				net_amount BIGINT NOT NULL,
				refunded_amount BIGINT NOT NULL DEFAULT 0,
				currency VARCHAR(3) NOT NULL,
				exchange_rate NUMERIC(16,8) NOT NULL DEFAULT 1,
				gateway VARCHAR NOT NULL,
				gateway_tx_id VARCHAR,
				client_request_id VARCHAR,
				failure_reason VARCHAR,
				created_at timestamptz NOT NULL DEFAULT current_timestamp,
				updated_at timestamptz,
				processed_at timestamptz,
				failed_at timestamptz,
				refunded_at timestamptz
			);

			CREATE TABLE IF NOT EXISTS gateway_events (
				id BIGSERIAL PRIMARY KEY,
				gateway VARCHAR NOT NULL,
				event_id VARCHAR NOT NULL,
				type VARCHAR NOT NULL,
				gateway_tx_id VARCHAR,
				refund_tx_id VARCHAR,
				amount BIGINT NOT NULL DEFAULT 0,
				currency VARCHAR(3),
				payload_hash VARCHAR,
				received_at timestamptz NOT NULL DEFAULT current_timestamp
			);

			CREATE TABLE IF NOT EXISTS idempotency_records (
				id BIGSERIAL PRIMARY KEY,
				key VARCHAR NOT NULL,
				outcome VARCHAR NOT NULL,
				payment_id BIGINT,
				created_at timestamptz NOT NULL DEFAULT current_timestamp,
				expires_at timestamptz
			);

			CREATE TABLE IF NOT EXISTS refund_records (
				id BIGSERIAL PRIMARY KEY,
				payment_id BIGINT NOT NULL REFERENCES payments (id),
				amount BIGINT NOT NULL,
				reason VARCHAR,
				status VARCHAR NOT NULL DEFAULT 'requested',
				gateway_refund_id VARCHAR,
				failure_reason VARCHAR,
				created_at timestamptz NOT NULL DEFAULT current_timestamp,
				updated_at timestamptz,
				settled_at timestamptz
			);

			CREATE TABLE IF NOT EXISTS parked_events (
				id BIGSERIAL PRIMARY KEY,
				gateway VARCHAR NOT NULL,
				event_id VARCHAR NOT NULL,
				type VARCHAR NOT NULL,
				gateway_tx_id VARCHAR,
				reason VARCHAR NOT NULL,
				payload_hash VARCHAR,
				created_at timestamptz NOT NULL DEFAULT current_timestamp
			);
			`
		_, err := db.Exec(sql)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		return nil
	})
}
