package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/shauritanga/rtexpress-payments/gateway"
	"github.com/uptrace/bun"
	"github.com/ziflex/lecho/v3"
)

// Sentinel errors surfaced by the payments core. Controllers map these to
// the responses package.
var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvoiceNotPayable    = errors.New("invoice is not payable")
	ErrAmountExceedsBalance = errors.New("amount exceeds balance due")
	ErrUnknownGateway       = errors.New("unknown or disabled gateway")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrEventInFlight        = errors.New("event is already being processed")
	ErrEventParked          = errors.New("event was parked for manual review")
	ErrPaymentNotRefundable = errors.New("payment is not in a refundable state")
	ErrRefundExceedsPayment = errors.New("refund amount exceeds refundable amount")
	ErrCurrencyMismatch     = errors.New("currency does not match the invoice")
)

type PaymentsService struct {
	Config        *Config
	DB            *bun.DB
	Logger        *lecho.Logger
	Gateways      map[string]gateway.Adapter
	PaymentPubSub *Pubsub
}

// GatewayFor resolves the adapter for a gateway name, falling back to the
// configured default when name is empty.
func (svc *PaymentsService) GatewayFor(name string) (gateway.Adapter, error) {
	if name == "" {
		name = svc.Config.DefaultGateway
	}
	adapter, ok := svc.Gateways[name]
	if !ok {
		return nil, ErrUnknownGateway
	}
	return adapter, nil
}

func (svc *PaymentsService) FindInvoice(ctx context.Context, invoiceID int64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := svc.DB.NewSelect().Model(&invoice).Where("id = ?", invoiceID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (svc *PaymentsService) FindPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	var payment models.Payment
	err := svc.DB.NewSelect().Model(&payment).Where("id = ?", paymentID).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (svc *PaymentsService) PaymentsForInvoice(ctx context.Context, invoiceID int64) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := svc.DB.NewSelect().Model(&payments).Where("invoice_id = ?", invoiceID).Order("id ASC").Scan(ctx)
	return payments, err
}

func (svc *PaymentsService) RefundsForPayment(ctx context.Context, paymentID int64) ([]models.RefundRecord, error) {
	refunds := []models.RefundRecord{}
	err := svc.DB.NewSelect().Model(&refunds).Where("payment_id = ?", paymentID).Order("id ASC").Scan(ctx)
	return refunds, err
}
