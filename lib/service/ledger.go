package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/uptrace/bun"
)

// The ledger is the only writer of invoice paid_amount, balance_due and
// status. Every mutation happens inside a transaction holding a row lock on
// the invoice, so concurrent events against the same invoice serialize and
// cross-invoice work proceeds in parallel.

// lockInvoice loads the invoice row under SELECT ... FOR UPDATE.
func (svc *PaymentsService) lockInvoice(ctx context.Context, tx bun.Tx, invoiceID int64) (*models.Invoice, error) {
	var invoice models.Invoice
	err := tx.NewSelect().Model(&invoice).Where("id = ?", invoiceID).For("UPDATE").Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// creditInvoice applies a settled charge. The customer is credited the
// gross amount; fees are the merchant's cost, not a reduction of what the
// customer paid.
func (svc *PaymentsService) creditInvoice(ctx context.Context, tx bun.Tx, invoice *models.Invoice, amount int64) error {
	if amount > invoice.BalanceDue {
		return ErrAmountExceedsBalance
	}
	invoice.PaidAmount += amount
	invoice.BalanceDue = invoice.TotalAmount - invoice.PaidAmount
	invoice.Status = invoiceStatusForBalance(invoice.PaidAmount, invoice.BalanceDue)
	_, err := tx.NewUpdate().Model(invoice).WherePK().Exec(ctx)
	return err
}

// debitInvoice reverses part of what was paid when a refund settles.
func (svc *PaymentsService) debitInvoice(ctx context.Context, tx bun.Tx, invoice *models.Invoice, amount int64) error {
	if amount > invoice.PaidAmount {
		return ErrRefundExceedsPayment
	}
	invoice.PaidAmount -= amount
	invoice.BalanceDue = invoice.TotalAmount - invoice.PaidAmount
	invoice.Status = invoiceStatusForBalance(invoice.PaidAmount, invoice.BalanceDue)
	_, err := tx.NewUpdate().Model(invoice).WherePK().Exec(ctx)
	return err
}

// invoiceStatusForBalance derives the invoice status from the ledger state.
// A refund that reopens a fully paid invoice lands on partial while any
// money remains applied, and back on sent once everything was returned.
func invoiceStatusForBalance(paidAmount, balanceDue int64) string {
	switch {
	case balanceDue == 0:
		return common.InvoiceStatusPaid
	case paidAmount > 0:
		return common.InvoiceStatusPartial
	default:
		return common.InvoiceStatusSent
	}
}
