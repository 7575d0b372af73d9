package service

import (
	"context"
	"errors"
	"time"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
)

// claimReclaimAfter is how long a claim with no recorded outcome may sit
// before a redelivery is allowed to take it over. Covers a process that
// crashed mid-reconcile without wedging the event forever.
const claimReclaimAfter = 5 * time.Minute

// IngestWebhook verifies, claims and reconciles one raw webhook delivery.
//
// A nil return means the event's effect is durably applied and the gateway
// should receive a 2xx. Any error means the gateway must retry (or, for
// parked events, keep failing until an operator intervenes).
func (svc *PaymentsService) IngestWebhook(ctx context.Context, gatewayName string, rawBody []byte, signatureHeader string) error {
	adapter, ok := svc.Gateways[gatewayName]
	if !ok {
		return ErrUnknownGateway
	}
	if svc.Config.VerifyWebhookSignatures {
		if !adapter.VerifyWebhookSignature(rawBody, signatureHeader) {
			return ErrInvalidSignature
		}
	}
	event, err := adapter.ParseWebhook(rawBody)
	if err != nil {
		return err
	}
	// Gateways send plenty of event types we have no reconciliation for
	// (disputes, payout notifications, config changes). Acknowledge them so
	// the gateway stops redelivering; a 4xx here would trip their alerting.
	if !handledEventType(event.Type) {
		svc.Logger.Infof("Ignoring %s event %s of unhandled type %s", event.Gateway, event.EventID, event.Type)
		return nil
	}

	idemKey := EventIdempotencyKey(event.Gateway, event.EventID)
	if record, found, err := svc.LookupIdempotencyKey(ctx, idemKey); err != nil {
		return err
	} else if found {
		if record.Outcome == models.OutcomeProcessed {
			return nil
		}
		return ErrEventParked
	}

	// The archive insert is the claim: the unique (gateway, event_id) pair
	// admits exactly one concurrent delivery into the reconciler.
	archived := models.GatewayEvent{
		Gateway:     event.Gateway,
		EventID:     event.EventID,
		Type:        event.Type,
		GatewayTxID: event.GatewayTxID,
		RefundTxID:  event.RefundTxID,
		Amount:      event.Amount,
		Currency:    event.Currency,
		PayloadHash: event.PayloadHash,
		ReceivedAt:  event.ReceivedAt,
	}
	if _, err = svc.DB.NewInsert().Model(&archived).Exec(ctx); err != nil {
		if !isUniqueConstraintError(err) {
			return err
		}
		// Someone holds or held the claim. Processed means done, parked
		// means done-but-broken, anything else is still in flight or was
		// stranded by a crash.
		record, found, lookupErr := svc.LookupIdempotencyKey(ctx, idemKey)
		if lookupErr != nil {
			return lookupErr
		}
		if found && record.Outcome == models.OutcomeProcessed {
			return nil
		}
		if found {
			return ErrEventParked
		}
		var existing models.GatewayEvent
		err = svc.DB.NewSelect().Model(&existing).
			Where("gateway = ? AND event_id = ?", event.Gateway, event.EventID).
			Limit(1).Scan(ctx)
		if err != nil {
			return err
		}
		if time.Since(existing.ReceivedAt) < claimReclaimAfter {
			return ErrEventInFlight
		}
		// Stale claim with no outcome: the holder died before the reconcile
		// transaction committed, so the event's effect never landed. Take the
		// claim over and run it again.
		svc.Logger.Infof("Reclaiming stranded event %s/%s", event.Gateway, event.EventID)
		archived.ID = existing.ID
	}

	applyErr := svc.ApplyGatewayEvent(ctx, event)
	switch {
	case applyErr == nil:
		if _, _, err = svc.SaveIdempotencyKey(ctx, idemKey, models.OutcomeProcessed, 0); err != nil {
			return err
		}
		return nil
	case errors.Is(applyErr, ErrEventParked):
		if _, _, err = svc.SaveIdempotencyKey(ctx, idemKey, models.OutcomeParked, 0); err != nil {
			return err
		}
		return applyErr
	default:
		// Transient failure: release the claim so the gateway's retry gets
		// another full attempt.
		if _, err = svc.DB.NewDelete().Model(&archived).WherePK().Exec(ctx); err != nil {
			svc.Logger.Errorf("Failed to release claim for event %s/%s: %v", event.Gateway, event.EventID, err)
		}
		return applyErr
	}
}

// handledEventType reports whether the reconciler has a path for this
// normalized event type.
func handledEventType(eventType string) bool {
	switch eventType {
	case common.EventTypeChargeSucceeded,
		common.EventTypeChargeFailed,
		common.EventTypeChargePending,
		common.EventTypeRefundSucceeded,
		common.EventTypeRefundFailed:
		return true
	}
	return false
}
