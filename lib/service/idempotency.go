package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/uptrace/bun"
)

const (
	chargeKeyPrefix = "charge/"
)

// ChargeIdempotencyKey builds the dedupe key for a client-initiated charge.
func ChargeIdempotencyKey(clientRequestID string) string {
	return chargeKeyPrefix + clientRequestID
}

// EventIdempotencyKey builds the dedupe key for a gateway webhook event.
func EventIdempotencyKey(gatewayName, eventID string) string {
	return gatewayName + "/" + eventID
}

// LookupIdempotencyKey returns the stored outcome for a key, if present and
// within the retention window. An expired record is treated as absent;
// gateways do not replay events that old.
func (svc *PaymentsService) LookupIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyRecord, bool, error) {
	var record models.IdempotencyRecord
	err := svc.DB.NewSelect().Model(&record).Where("key = ?", key).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !record.ExpiresAt.IsZero() && record.ExpiresAt.Time.Before(time.Now()) {
		return nil, false, nil
	}
	return &record, true, nil
}

// SaveIdempotencyKey records an outcome for a key. The insert relies on the
// unique constraint as the check-and-set: when a concurrent writer got there
// first, the stored record is returned and created is false.
func (svc *PaymentsService) SaveIdempotencyKey(ctx context.Context, key, outcome string, paymentID int64) (*models.IdempotencyRecord, bool, error) {
	return svc.saveIdempotencyKey(ctx, svc.DB, key, outcome, paymentID)
}

// SaveIdempotencyKeyTx is the same check-and-set inside a caller-owned
// transaction, so the key becomes durable together with the work it guards.
func (svc *PaymentsService) SaveIdempotencyKeyTx(ctx context.Context, tx bun.Tx, key, outcome string, paymentID int64) (*models.IdempotencyRecord, bool, error) {
	return svc.saveIdempotencyKey(ctx, tx, key, outcome, paymentID)
}

func (svc *PaymentsService) saveIdempotencyKey(ctx context.Context, db bun.IDB, key, outcome string, paymentID int64) (*models.IdempotencyRecord, bool, error) {
	record := models.IdempotencyRecord{
		Key:       key,
		Outcome:   outcome,
		PaymentID: paymentID,
	}
	if svc.Config.IdempotencyRetentionDays > 0 {
		record.ExpiresAt = bunNullTime(time.Now().AddDate(0, 0, svc.Config.IdempotencyRetentionDays))
	}
	_, err := db.NewInsert().Model(&record).Exec(ctx)
	if err != nil {
		if isUniqueConstraintError(err) {
			var existing models.IdempotencyRecord
			scanErr := db.NewSelect().Model(&existing).Where("key = ?", key).Limit(1).Scan(ctx)
			if scanErr != nil {
				return nil, false, scanErr
			}
			return &existing, false, nil
		}
		return nil, false, err
	}
	return &record, true, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unique constraint")
}
