package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/shauritanga/rtexpress-payments/gateway"
	"github.com/uptrace/bun"
)

// paymentTransitions is the closed set of allowed payment state changes.
// failed and refunded are terminal; completed can only move through the
// refund path.
var paymentTransitions = map[string][]string{
	common.PaymentStatusPending:           {common.PaymentStatusProcessing, common.PaymentStatusCompleted, common.PaymentStatusFailed},
	common.PaymentStatusProcessing:        {common.PaymentStatusCompleted, common.PaymentStatusFailed},
	common.PaymentStatusCompleted:         {common.PaymentStatusPartiallyRefunded, common.PaymentStatusRefunded},
	common.PaymentStatusPartiallyRefunded: {common.PaymentStatusPartiallyRefunded, common.PaymentStatusRefunded},
}

// CanTransition reports whether a payment may move from one status to
// another.
func CanTransition(from, to string) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ApplyGatewayEvent drives the payment state machine with a normalized
// gateway event. Gateways occasionally deliver stale or reordered events;
// anything that does not fit the current state is parked for manual review
// and reported, never guessed at.
func (svc *PaymentsService) ApplyGatewayEvent(ctx context.Context, event gateway.Event) error {
	switch event.Type {
	case common.EventTypeChargeSucceeded:
		return svc.applyChargeOutcome(ctx, event, true)
	case common.EventTypeChargeFailed:
		return svc.applyChargeOutcome(ctx, event, false)
	case common.EventTypeRefundSucceeded:
		return svc.applyRefundSucceeded(ctx, event)
	case common.EventTypeRefundFailed:
		return svc.applyRefundFailed(ctx, event)
	case common.EventTypeChargePending:
		// nothing to reconcile yet
		return nil
	default:
		return svc.parkEvent(ctx, event, fmt.Sprintf("unsupported event type %q", event.Type))
	}
}

func (svc *PaymentsService) applyChargeOutcome(ctx context.Context, event gateway.Event, succeeded bool) error {
	target := common.PaymentStatusFailed
	if succeeded {
		target = common.PaymentStatusCompleted
	}

	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	payment, invoice, err := svc.lockPaymentByGatewayTx(ctx, tx, event.Gateway, event.GatewayTxID)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ErrPaymentNotFound) {
			return svc.parkEvent(ctx, event, "no payment matches gateway transaction "+event.GatewayTxID)
		}
		return err
	}
	if !CanTransition(payment.Status, target) {
		tx.Rollback()
		if payment.Status == target {
			// A second event id reporting the outcome we already applied
			// is a safe no-op, not an integrity problem.
			return nil
		}
		return svc.parkEvent(ctx, event, fmt.Sprintf("illegal transition %s -> %s", payment.Status, target))
	}

	now := time.Now()
	payment.Status = target
	if succeeded {
		payment.ProcessedAt = bunNullTime(now)
		if err = svc.creditInvoice(ctx, tx, invoice, payment.Amount); err != nil {
			tx.Rollback()
			if errors.Is(err, ErrAmountExceedsBalance) {
				return svc.parkEvent(ctx, event, "settled amount exceeds invoice balance due")
			}
			return err
		}
	} else {
		payment.FailedAt = bunNullTime(now)
		payment.FailureReason = event.FailureReason
	}

	if _, err = tx.NewUpdate().Model(payment).WherePK().Exec(ctx); err != nil {
		tx.Rollback()
		return err
	}
	// The dedupe outcome becomes durable with the ledger mutation itself, so
	// a crash between commit and response cannot strand an applied event.
	if _, _, err = svc.SaveIdempotencyKeyTx(ctx, tx, EventIdempotencyKey(event.Gateway, event.EventID), models.OutcomeProcessed, payment.ID); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	topic := common.TopicPaymentFailed
	if succeeded {
		topic = common.TopicPaymentCompleted
	}
	svc.PaymentPubSub.Publish(topic, PaymentEvent{Topic: topic, Payment: *payment, Invoice: *invoice})
	return nil
}

func (svc *PaymentsService) applyRefundSucceeded(ctx context.Context, event gateway.Event) error {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	payment, invoice, err := svc.lockPaymentByGatewayTx(ctx, tx, event.Gateway, event.GatewayTxID)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ErrPaymentNotFound) {
			return svc.parkEvent(ctx, event, "no payment matches gateway transaction "+event.GatewayTxID)
		}
		return err
	}
	if event.Amount <= 0 || event.Amount > payment.RefundableAmount() {
		tx.Rollback()
		return svc.parkEvent(ctx, event, fmt.Sprintf("refund amount %d exceeds refundable %d", event.Amount, payment.RefundableAmount()))
	}

	target := common.PaymentStatusPartiallyRefunded
	if payment.RefundedAmount+event.Amount == payment.Amount {
		target = common.PaymentStatusRefunded
	}
	if !CanTransition(payment.Status, target) {
		tx.Rollback()
		return svc.parkEvent(ctx, event, fmt.Sprintf("illegal transition %s -> %s", payment.Status, target))
	}

	refund, err := svc.resolveRefundRecord(ctx, tx, payment, event)
	if err != nil {
		tx.Rollback()
		return err
	}
	if refund.Status == common.RefundStatusCompleted {
		// A fresh event id confirming a refund we already settled is a
		// safe no-op, not an integrity problem.
		tx.Rollback()
		return nil
	}
	now := time.Now()
	refund.Status = common.RefundStatusCompleted
	refund.SettledAt = bunNullTime(now)
	if refund.GatewayRefundID == "" {
		refund.GatewayRefundID = event.RefundTxID
	}
	if _, err = tx.NewUpdate().Model(refund).WherePK().Exec(ctx); err != nil {
		tx.Rollback()
		return err
	}

	payment.RefundedAmount += event.Amount
	payment.Status = target
	payment.RefundedAt = bunNullTime(now)
	if _, err = tx.NewUpdate().Model(payment).WherePK().Exec(ctx); err != nil {
		tx.Rollback()
		return err
	}

	if err = svc.debitInvoice(ctx, tx, invoice, event.Amount); err != nil {
		tx.Rollback()
		if errors.Is(err, ErrRefundExceedsPayment) {
			return svc.parkEvent(ctx, event, "refund amount exceeds invoice paid amount")
		}
		return err
	}
	if _, _, err = svc.SaveIdempotencyKeyTx(ctx, tx, EventIdempotencyKey(event.Gateway, event.EventID), models.OutcomeProcessed, payment.ID); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	svc.PaymentPubSub.Publish(common.TopicRefundCompleted, PaymentEvent{
		Topic:   common.TopicRefundCompleted,
		Payment: *payment,
		Invoice: *invoice,
		Refund:  refund,
	})
	return nil
}

func (svc *PaymentsService) applyRefundFailed(ctx context.Context, event gateway.Event) error {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	payment, _, err := svc.lockPaymentByGatewayTx(ctx, tx, event.Gateway, event.GatewayTxID)
	if err != nil {
		tx.Rollback()
		if errors.Is(err, ErrPaymentNotFound) {
			return svc.parkEvent(ctx, event, "no payment matches gateway transaction "+event.GatewayTxID)
		}
		return err
	}
	refund, err := svc.resolveRefundRecord(ctx, tx, payment, event)
	if err != nil {
		tx.Rollback()
		return err
	}
	// Only an in-flight request can fail. A failure report against a refund
	// we already settled (or already failed) contradicts our ledger.
	if refund.Status != common.RefundStatusRequested {
		tx.Rollback()
		if refund.Status == common.RefundStatusFailed {
			return nil
		}
		return svc.parkEvent(ctx, event, fmt.Sprintf("refund failure contradicts %s refund record %d", refund.Status, refund.ID))
	}
	refund.Status = common.RefundStatusFailed
	refund.FailureReason = event.FailureReason
	if _, err = tx.NewUpdate().Model(refund).WherePK().Exec(ctx); err != nil {
		tx.Rollback()
		return err
	}
	if _, _, err = svc.SaveIdempotencyKeyTx(ctx, tx, EventIdempotencyKey(event.Gateway, event.EventID), models.OutcomeProcessed, payment.ID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// lockPayment locks the payment's invoice row and re-reads the payment
// under that lock, by payment id.
func (svc *PaymentsService) lockPayment(ctx context.Context, tx bun.Tx, paymentID int64) (*models.Payment, *models.Invoice, error) {
	var payment models.Payment
	err := tx.NewSelect().Model(&payment).Where("id = ?", paymentID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrPaymentNotFound
		}
		return nil, nil, err
	}
	invoice, err := svc.lockInvoice(ctx, tx, payment.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	err = tx.NewSelect().Model(&payment).Where("id = ?", payment.ID).Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &payment, invoice, nil
}

// lockPaymentByGatewayTx locks the payment's invoice row and re-reads the
// payment under that lock. Payment rows only change while their invoice is
// locked, so this serializes all state decisions for one invoice.
func (svc *PaymentsService) lockPaymentByGatewayTx(ctx context.Context, tx bun.Tx, gatewayName, gatewayTxID string) (*models.Payment, *models.Invoice, error) {
	if gatewayTxID == "" {
		return nil, nil, ErrPaymentNotFound
	}
	var payment models.Payment
	err := tx.NewSelect().Model(&payment).
		Where("gateway = ? AND gateway_tx_id = ?", gatewayName, gatewayTxID).
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrPaymentNotFound
		}
		return nil, nil, err
	}
	invoice, err := svc.lockInvoice(ctx, tx, payment.InvoiceID)
	if err != nil {
		return nil, nil, err
	}
	// re-read now that the invoice lock is held
	err = tx.NewSelect().Model(&payment).Where("id = ?", payment.ID).Scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	return &payment, invoice, nil
}

// resolveRefundRecord finds the refund this event finalizes: by the
// gateway's refund id, then by an open requested record with the same
// amount, and creates one for gateway-initiated refunds we never requested.
func (svc *PaymentsService) resolveRefundRecord(ctx context.Context, tx bun.Tx, payment *models.Payment, event gateway.Event) (*models.RefundRecord, error) {
	var refund models.RefundRecord
	if event.RefundTxID != "" {
		err := tx.NewSelect().Model(&refund).
			Where("payment_id = ? AND gateway_refund_id = ?", payment.ID, event.RefundTxID).
			Limit(1).Scan(ctx)
		if err == nil {
			return &refund, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}
	err := tx.NewSelect().Model(&refund).
		Where("payment_id = ? AND status = ? AND amount = ?", payment.ID, common.RefundStatusRequested, event.Amount).
		Order("id ASC").Limit(1).Scan(ctx)
	if err == nil {
		return &refund, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	refund = models.RefundRecord{
		PaymentID:       payment.ID,
		Amount:          event.Amount,
		Reason:          "gateway-initiated",
		Status:          common.RefundStatusRequested,
		GatewayRefundID: event.RefundTxID,
	}
	if _, err := tx.NewInsert().Model(&refund).Exec(ctx); err != nil {
		return nil, err
	}
	return &refund, nil
}

// parkEvent sets an ambiguous event aside for manual review and alerts.
func (svc *PaymentsService) parkEvent(ctx context.Context, event gateway.Event, reason string) error {
	parked := models.ParkedEvent{
		Gateway:     event.Gateway,
		EventID:     event.EventID,
		Type:        event.Type,
		GatewayTxID: event.GatewayTxID,
		Reason:      reason,
		PayloadHash: event.PayloadHash,
	}
	if _, err := svc.DB.NewInsert().Model(&parked).Exec(ctx); err != nil {
		svc.Logger.Errorf("Failed to park event %s/%s: %v", event.Gateway, event.EventID, err)
		return err
	}
	svc.Logger.Errorf("Parked event %s/%s for manual review: %s", event.Gateway, event.EventID, reason)
	sentry.CaptureMessage(fmt.Sprintf("parked gateway event %s/%s: %s", event.Gateway, event.EventID, reason))
	return fmt.Errorf("%w: %s", ErrEventParked, reason)
}
