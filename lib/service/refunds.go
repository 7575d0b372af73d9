package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/shauritanga/rtexpress-payments/gateway"
)

// Refund sends money back to the payer for a settled payment. Partial
// refunds are allowed up to the unrefunded remainder; the payment and its
// invoice are only touched once the gateway confirms.
func (svc *PaymentsService) Refund(ctx context.Context, paymentID, amount int64, reason string) (*models.RefundRecord, error) {
	// Validation and the requested-record insert happen under the invoice
	// lock: concurrent refund requests against one payment are serialized
	// here, and in-flight requests count against the refundable remainder so
	// two racing partials cannot together exceed it.
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	payment, _, err := svc.lockPayment(ctx, tx, paymentID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	switch payment.Status {
	case common.PaymentStatusCompleted, common.PaymentStatusPartiallyRefunded:
	default:
		tx.Rollback()
		return nil, ErrPaymentNotRefundable
	}
	var outstanding int64
	err = tx.NewSelect().Model((*models.RefundRecord)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("payment_id = ? AND status = ?", payment.ID, common.RefundStatusRequested).
		Scan(ctx, &outstanding)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if amount <= 0 || amount > payment.RefundableAmount()-outstanding {
		tx.Rollback()
		return nil, ErrRefundExceedsPayment
	}
	adapter, err := svc.GatewayFor(payment.Gateway)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	refund := &models.RefundRecord{
		PaymentID: payment.ID,
		Amount:    amount,
		Reason:    reason,
		Status:    common.RefundStatusRequested,
	}
	if _, err = tx.NewInsert().Model(refund).Exec(ctx); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	// The record id doubles as the gateway idempotency token, so resubmitting
	// this exact request after a crash cannot produce a second refund.
	token := fmt.Sprintf("rtx-ref-%d", refund.ID)
	detached := context.WithoutCancel(ctx)
	result, refundErr := svc.refundWithRetry(detached, adapter, payment.GatewayTxID, amount, token)
	if refundErr != nil {
		refund.Status = common.RefundStatusFailed
		refund.FailureReason = refundErr.Error()
		if ge, ok := gateway.AsError(refundErr); ok {
			refund.FailureReason = gateway.DeclineMessage(ge.Code)
		}
		if _, err = svc.DB.NewUpdate().Model(refund).WherePK().Exec(detached); err != nil {
			return nil, err
		}
		return refund, refundErr
	}

	refund.GatewayRefundID = result.RefundTxID
	if _, err = svc.DB.NewUpdate().Model(refund).WherePK().Exec(detached); err != nil {
		return nil, err
	}

	// Synchronous confirmations settle through the same reconciler path a
	// webhook would take; pending ones wait for the gateway's event.
	if result.Status == gateway.StatusCompleted {
		event := gateway.Event{
			Type:        common.EventTypeRefundSucceeded,
			Gateway:     adapter.Name(),
			EventID:     fmt.Sprintf("sync_%s_refund", result.RefundTxID),
			GatewayTxID: payment.GatewayTxID,
			RefundTxID:  result.RefundTxID,
			Amount:      amount,
			Currency:    payment.Currency,
			ReceivedAt:  time.Now(),
		}
		if err = svc.ApplyGatewayEvent(detached, event); err != nil {
			return nil, err
		}
		err = svc.DB.NewSelect().Model(refund).Where("id = ?", refund.ID).Scan(detached)
		if err != nil {
			return nil, err
		}
	}
	return refund, nil
}

func (svc *PaymentsService) refundWithRetry(ctx context.Context, adapter gateway.Adapter, gatewayTxID string, amount int64, token string) (gateway.RefundResult, error) {
	var result gateway.RefundResult
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(svc.Config.GatewayTimeout)*time.Second)
		defer cancel()
		var err error
		result, err = adapter.Refund(attemptCtx, gatewayTxID, amount, token)
		if err != nil && !gateway.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(svc.Config.GatewayMaxRetries)))
	return result, err
}
