package service

import (
	"context"
	"time"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
)

// StartPendingPaymentSweep periodically reconciles payments whose gateway
// outcome never arrived, usually because a webhook delivery was lost.
func (svc *PaymentsService) StartPendingPaymentSweep(ctx context.Context) {
	interval := time.Duration(svc.Config.PendingSweepInterval) * time.Second
	svc.Logger.Infof("Starting pending payment sweep every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.CheckAllPendingPayments(ctx); err != nil {
				svc.Logger.Error(err)
			}
		}
	}
}

// CheckAllPendingPayments looks up every stale in-flight payment at its
// gateway and folds the answer through the reconciler.
func (svc *PaymentsService) CheckAllPendingPayments(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(svc.Config.PendingPaymentMaxAge) * time.Second)
	pendingPayments := []models.Payment{}
	err := svc.DB.NewSelect().Model(&pendingPayments).
		Where("status = ?", common.PaymentStatusProcessing).
		Where("gateway_tx_id IS NOT NULL AND gateway_tx_id != ''").
		Where("created_at < ?", cutoff).
		Scan(ctx)
	if err != nil {
		return err
	}
	svc.Logger.Infof("Found %d pending payments", len(pendingPayments))
	for _, payment := range pendingPayments {
		if err = svc.CheckPendingPayment(ctx, &payment); err != nil {
			svc.Logger.Error(err)
		}
	}
	return nil
}

func (svc *PaymentsService) CheckPendingPayment(ctx context.Context, payment *models.Payment) error {
	adapter, err := svc.GatewayFor(payment.Gateway)
	if err != nil {
		return err
	}
	event, err := adapter.LookupCharge(ctx, payment.GatewayTxID)
	if err != nil {
		return err
	}
	if event.Type == common.EventTypeChargePending {
		svc.Logger.Infof("Payment %d still in flight at %s", payment.ID, payment.Gateway)
		return nil
	}
	return svc.ApplyGatewayEvent(ctx, event)
}
