package integration_tests

import (
	"context"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/shauritanga/rtexpress-payments/gateway"
	"github.com/shauritanga/rtexpress-payments/lib/service"
)

type RefundTestSuite struct {
	suite.Suite
	svc  *service.PaymentsService
	mock *mockGateway
}

func (suite *RefundTestSuite) SetupSuite() {
	mock := newMockGateway()
	svc, err := paymentsTestServiceInit(mock)
	if err != nil {
		log.Fatalf("Error initializing test service: %v", err)
	}
	suite.svc = svc
	suite.mock = mock
}

func (suite *RefundTestSuite) TearDownTest() {
	suite.mock.reset()
	for _, table := range allTables {
		err := clearTable(suite.svc, table)
		assert.NoError(suite.T(), err)
	}
}

// settledPayment charges an invoice to completion so refunds have something
// to work against.
func (suite *RefundTestSuite) settledPayment(invoiceID int64, amount int64, gatewayTxID, clientRequestID string) *models.Payment {
	suite.mock.queueChargeResults(gateway.ChargeResult{GatewayTxID: gatewayTxID, Status: gateway.StatusCompleted})
	payment, err := suite.svc.Charge(context.Background(), service.ChargeParams{
		InvoiceID:       invoiceID,
		Amount:          amount,
		ClientRequestID: clientRequestID,
	})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.PaymentStatusCompleted, payment.Status)
	return payment
}

func (suite *RefundTestSuite) TestPartialRefundReopensInvoice() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	payment := suite.settledPayment(invoice.ID, 10000, "tx_1", "req-r1")
	suite.mock.setRefundResult(gateway.RefundResult{RefundTxID: "ref_1", Status: gateway.StatusCompleted})

	refund, err := suite.svc.Refund(ctx, payment.ID, 4000, "damaged parcel")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.RefundStatusCompleted, refund.Status)
	assert.Equal(suite.T(), "ref_1", refund.GatewayRefundID)
	assert.True(suite.T(), refund.SettledAt.Time.Unix() > 0)

	updated, err := suite.svc.FindPayment(ctx, payment.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.PaymentStatusPartiallyRefunded, updated.Status)
	assert.Equal(suite.T(), int64(4000), updated.RefundedAmount)

	reopened, err := suite.svc.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(6000), reopened.PaidAmount)
	assert.Equal(suite.T(), int64(4000), reopened.BalanceDue)
	assert.Equal(suite.T(), common.InvoiceStatusPartial, reopened.Status)
}

func (suite *RefundTestSuite) TestRefundBeyondRemainderRefused() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	payment := suite.settledPayment(invoice.ID, 10000, "tx_2", "req-r2")
	suite.mock.setRefundResult(gateway.RefundResult{RefundTxID: "ref_2", Status: gateway.StatusCompleted})

	_, err = suite.svc.Refund(ctx, payment.ID, 4000, "damaged parcel")
	assert.NoError(suite.T(), err)

	_, err = suite.svc.Refund(ctx, payment.ID, 7000, "goodwill")
	assert.ErrorIs(suite.T(), err, service.ErrRefundExceedsPayment)

	count, err := suite.svc.DB.NewSelect().Model((*models.RefundRecord)(nil)).Count(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *RefundTestSuite) TestConcurrentRefundsCannotOversubscribe() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	payment := suite.settledPayment(invoice.ID, 10000, "tx_3", "req-r3")
	// pending so the first request stays outstanding while the second races it
	suite.mock.setRefundResult(gateway.RefundResult{RefundTxID: "ref_3", Status: gateway.StatusPending})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = suite.svc.Refund(ctx, payment.ID, 6000, "dispute")
		}(i)
	}
	wg.Wait()

	// exactly one request may reserve 6000 of the 10000 refundable
	refused := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(suite.T(), err, service.ErrRefundExceedsPayment)
			refused++
		}
	}
	assert.Equal(suite.T(), 1, refused)

	_, refundCalls, _ := suite.mock.counts()
	assert.Equal(suite.T(), 1, refundCalls)
	count, err := suite.svc.DB.NewSelect().Model((*models.RefundRecord)(nil)).Count(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)
}

func (suite *RefundTestSuite) TestFailureReportOnSettledRefundIsParked() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	payment := suite.settledPayment(invoice.ID, 10000, "tx_4", "req-r4")
	suite.mock.setRefundResult(gateway.RefundResult{RefundTxID: "ref_4", Status: gateway.StatusCompleted})

	refund, err := suite.svc.Refund(ctx, payment.ID, 4000, "damaged parcel")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.RefundStatusCompleted, refund.Status)

	body := eventBody(testEvent{Type: "refund.failed", EventID: "evt_rf", GatewayTxID: "tx_4", RefundTxID: "ref_4", Amount: 4000, Reason: "reversal failed"})
	err = suite.svc.IngestWebhook(ctx, "testpay", body, "valid")
	assert.ErrorIs(suite.T(), err, service.ErrEventParked)

	unchanged := models.RefundRecord{}
	err = suite.svc.DB.NewSelect().Model(&unchanged).Where("id = ?", refund.ID).Scan(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.RefundStatusCompleted, unchanged.Status)

	settled, err := suite.svc.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(6000), settled.PaidAmount)
}

func (suite *RefundTestSuite) TestGatewayInitiatedRefund() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	payment := suite.settledPayment(invoice.ID, 10000, "tx_5", "req-r5")

	body := eventBody(testEvent{Type: "refund.succeeded", EventID: "evt_gw", GatewayTxID: "tx_5", RefundTxID: "rev_9", Amount: 2500, Currency: "USD"})
	err = suite.svc.IngestWebhook(ctx, "testpay", body, "valid")
	assert.NoError(suite.T(), err)

	refunds, err := suite.svc.RefundsForPayment(ctx, payment.ID)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), refunds, 1)
	assert.Equal(suite.T(), common.RefundStatusCompleted, refunds[0].Status)
	assert.Equal(suite.T(), "rev_9", refunds[0].GatewayRefundID)
	assert.Equal(suite.T(), "gateway-initiated", refunds[0].Reason)

	updated, err := suite.svc.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(7500), updated.PaidAmount)
	assert.Equal(suite.T(), int64(2500), updated.BalanceDue)
}

func TestRefundTestSuite(t *testing.T) {
	suite.Run(t, new(RefundTestSuite))
}
