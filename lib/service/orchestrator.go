package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/shauritanga/rtexpress-payments/gateway"
)

type ChargeParams struct {
	InvoiceID       int64
	Amount          int64
	Currency        string
	Gateway         string
	ClientRequestID string
	PhoneNumber     string
}

// Charge is the entry point for collecting money against an invoice.
// Retrying the same ClientRequestID returns the payment created by the
// first attempt without contacting any gateway.
func (svc *PaymentsService) Charge(ctx context.Context, params ChargeParams) (*models.Payment, error) {
	adapter, err := svc.GatewayFor(params.Gateway)
	if err != nil {
		return nil, err
	}

	idemKey := ChargeIdempotencyKey(params.ClientRequestID)
	record, found, err := svc.LookupIdempotencyKey(ctx, idemKey)
	if err != nil {
		return nil, err
	}
	if found {
		return svc.FindPayment(ctx, record.PaymentID)
	}

	invoice, err := svc.FindInvoice(ctx, params.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !invoicePayable(invoice.Status) {
		return nil, ErrInvoiceNotPayable
	}
	if params.Currency != "" && params.Currency != invoice.Currency {
		return nil, ErrCurrencyMismatch
	}
	if params.Amount <= 0 {
		return nil, ErrAmountExceedsBalance
	}
	if params.Amount > invoice.BalanceDue {
		return nil, ErrAmountExceedsBalance
	}

	fee := svc.CalcFee(adapter.Name(), params.Amount)
	gross, net := ChargeAmounts(params.Amount, fee, svc.Config.FeeChargedToCustomer)
	payment := &models.Payment{
		InvoiceID:       invoice.ID,
		CustomerRef:     invoice.CustomerRef,
		Status:          common.PaymentStatusPending,
		Amount:          params.Amount,
		FeeAmount:       fee,
		NetAmount:       net,
		Currency:        invoice.Currency,
		ExchangeRate:    decimal.NewFromInt(1),
		Gateway:         adapter.Name(),
		ClientRequestID: params.ClientRequestID,
	}
	if _, err = svc.DB.NewInsert().Model(payment).Exec(ctx); err != nil {
		return nil, err
	}

	// The mapping is recorded before the gateway is contacted, and stays
	// even when the attempt fails, so client retries never re-charge.
	record, created, err := svc.SaveIdempotencyKey(ctx, idemKey, models.OutcomeProcessed, payment.ID)
	if err != nil {
		return nil, err
	}
	if !created {
		// a concurrent request with the same id won the insert
		if _, delErr := svc.DB.NewDelete().Model(payment).WherePK().Exec(ctx); delErr != nil {
			svc.Logger.Errorf("Failed to remove duplicate pending payment %d: %v", payment.ID, delErr)
		}
		return svc.FindPayment(ctx, record.PaymentID)
	}

	// Money movement, once initiated, cannot be cancelled from this side:
	// the gateway call and everything after it survive caller cancellation.
	detached := context.WithoutCancel(ctx)
	result, chargeErr := svc.chargeWithRetry(detached, adapter, gateway.ChargeRequest{
		InvoiceID:        invoice.ID,
		PaymentRef:       fmt.Sprintf("rtx-pay-%d", payment.ID),
		CustomerRef:      invoice.CustomerRef,
		Amount:           gross,
		Currency:         invoice.Currency,
		Description:      fmt.Sprintf("Invoice #%d", invoice.ID),
		IdempotencyToken: params.ClientRequestID,
		PhoneNumber:      params.PhoneNumber,
	})
	if chargeErr != nil {
		reason := chargeErr.Error()
		if ge, ok := gateway.AsError(chargeErr); ok {
			reason = gateway.DeclineMessage(ge.Code)
		}
		if err = svc.handleSyncChargeFailure(detached, payment, reason); err != nil {
			return nil, err
		}
		return payment, chargeErr
	}

	payment.GatewayTxID = result.GatewayTxID
	payment.Status = common.PaymentStatusProcessing
	if _, err = svc.DB.NewUpdate().Model(payment).WherePK().Exec(detached); err != nil {
		return nil, err
	}

	// Small gateways respond synchronously; their outcome flows through the
	// same reconciler path a webhook would take. Callback-only gateways
	// leave the payment in processing until their event arrives.
	switch result.Status {
	case gateway.StatusCompleted:
		err = svc.ApplyGatewayEvent(detached, syntheticEvent(adapter.Name(), common.EventTypeChargeSucceeded, result.GatewayTxID, params.Amount, invoice.Currency))
	case gateway.StatusFailed:
		err = svc.ApplyGatewayEvent(detached, syntheticEvent(adapter.Name(), common.EventTypeChargeFailed, result.GatewayTxID, params.Amount, invoice.Currency))
	}
	if err != nil {
		return nil, err
	}

	return svc.FindPayment(detached, payment.ID)
}

// chargeWithRetry calls the adapter under a bounded per-attempt timeout,
// retrying only failures the adapter classified as transient.
func (svc *PaymentsService) chargeWithRetry(ctx context.Context, adapter gateway.Adapter, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
	var result gateway.ChargeResult
	operation := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, time.Duration(svc.Config.GatewayTimeout)*time.Second)
		defer cancel()
		var err error
		result, err = adapter.Charge(attemptCtx, req)
		if err != nil && !gateway.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	expontentialBackoff := backoff.NewExponentialBackOff()
	err := backoff.Retry(operation, backoff.WithMaxRetries(expontentialBackoff, uint64(svc.Config.GatewayMaxRetries)))
	return result, err
}

// handleSyncChargeFailure marks a payment that never got a gateway
// transaction id as failed. The invoice is untouched.
func (svc *PaymentsService) handleSyncChargeFailure(ctx context.Context, payment *models.Payment, reason string) error {
	tx, err := svc.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	invoice, err := svc.lockInvoice(ctx, tx, payment.InvoiceID)
	if err != nil {
		tx.Rollback()
		return err
	}
	payment.Status = common.PaymentStatusFailed
	payment.FailedAt = bunNullTime(time.Now())
	payment.FailureReason = reason
	if _, err = tx.NewUpdate().Model(payment).WherePK().Exec(ctx); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	svc.PaymentPubSub.Publish(common.TopicPaymentFailed, PaymentEvent{
		Topic:   common.TopicPaymentFailed,
		Payment: *payment,
		Invoice: *invoice,
	})
	return nil
}

func invoicePayable(status string) bool {
	switch status {
	case common.InvoiceStatusSent, common.InvoiceStatusViewed, common.InvoiceStatusPartial, common.InvoiceStatusOverdue:
		return true
	default:
		return false
	}
}

func syntheticEvent(gatewayName, eventType, gatewayTxID string, amount int64, currency string) gateway.Event {
	return gateway.Event{
		Type:        eventType,
		Gateway:     gatewayName,
		EventID:     fmt.Sprintf("sync_%s_%s", gatewayTxID, eventType),
		GatewayTxID: gatewayTxID,
		Amount:      amount,
		Currency:    currency,
		ReceivedAt:  time.Now(),
	}
}
