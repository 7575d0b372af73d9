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

type ChargeTestSuite struct {
	suite.Suite
	svc  *service.PaymentsService
	mock *mockGateway
}

func (suite *ChargeTestSuite) SetupSuite() {
	mock := newMockGateway()
	svc, err := paymentsTestServiceInit(mock)
	if err != nil {
		log.Fatalf("Error initializing test service: %v", err)
	}
	suite.svc = svc
	suite.mock = mock
}

func (suite *ChargeTestSuite) TearDownTest() {
	suite.mock.reset()
	for _, table := range allTables {
		err := clearTable(suite.svc, table)
		assert.NoError(suite.T(), err)
	}
}

func (suite *ChargeTestSuite) TestRetrySameClientRequestChargesOnce() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	suite.mock.setChargeResult(gateway.ChargeResult{GatewayTxID: "tx_1", Status: gateway.StatusCompleted})

	params := service.ChargeParams{InvoiceID: invoice.ID, Amount: 10000, ClientRequestID: "req-1"}
	first, err := suite.svc.Charge(ctx, params)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), common.PaymentStatusCompleted, first.Status)

	second, err := suite.svc.Charge(ctx, params)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), first.ID, second.ID)

	chargeCalls, _, _ := suite.mock.counts()
	assert.Equal(suite.T(), 1, chargeCalls)
	count, err := suite.svc.DB.NewSelect().Model((*models.Payment)(nil)).Count(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)

	settled, err := suite.svc.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(10000), settled.PaidAmount)
	assert.Equal(suite.T(), int64(0), settled.BalanceDue)
	assert.Equal(suite.T(), common.InvoiceStatusPaid, settled.Status)
}

func (suite *ChargeTestSuite) TestConcurrentSameClientRequestChargesOnce() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	suite.mock.setChargeResult(gateway.ChargeResult{GatewayTxID: "tx_2", Status: gateway.StatusCompleted})

	params := service.ChargeParams{InvoiceID: invoice.ID, Amount: 10000, ClientRequestID: "req-2"}
	var wg sync.WaitGroup
	payments := make([]*models.Payment, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payments[i], errs[i] = suite.svc.Charge(ctx, params)
		}(i)
	}
	wg.Wait()

	assert.NoError(suite.T(), errs[0])
	assert.NoError(suite.T(), errs[1])
	assert.Equal(suite.T(), payments[0].ID, payments[1].ID)

	chargeCalls, _, _ := suite.mock.counts()
	assert.Equal(suite.T(), 1, chargeCalls)
	count, err := suite.svc.DB.NewSelect().Model((*models.Payment)(nil)).Count(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 1, count)

	settled, err := suite.svc.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(10000), settled.PaidAmount)
}

func (suite *ChargeTestSuite) TestChargeOverBalanceCreatesNothing() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)

	_, err = suite.svc.Charge(ctx, service.ChargeParams{InvoiceID: invoice.ID, Amount: 20000, ClientRequestID: "req-3"})
	assert.ErrorIs(suite.T(), err, service.ErrAmountExceedsBalance)

	chargeCalls, _, _ := suite.mock.counts()
	assert.Equal(suite.T(), 0, chargeCalls)
	count, err := suite.svc.DB.NewSelect().Model((*models.Payment)(nil)).Count(ctx)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), 0, count)
}

func (suite *ChargeTestSuite) TestDeclinedChargeLeavesLedgerUntouched() {
	ctx := context.Background()
	invoice, err := createTestInvoice(suite.svc, 10000, "USD")
	assert.NoError(suite.T(), err)
	suite.mock.setChargeErr(gateway.NewError(gateway.ErrCodeCardDeclined, "testpay", "declined"))

	params := service.ChargeParams{InvoiceID: invoice.ID, Amount: 10000, ClientRequestID: "req-4"}
	payment, err := suite.svc.Charge(ctx, params)
	assert.Error(suite.T(), err)
	assert.Equal(suite.T(), common.PaymentStatusFailed, payment.Status)
	assert.NotEmpty(suite.T(), payment.FailureReason)

	untouched, err := suite.svc.FindInvoice(ctx, invoice.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), untouched.PaidAmount)
	assert.Equal(suite.T(), int64(10000), untouched.BalanceDue)

	// the client retry must surface the failed attempt, not re-charge
	retried, err := suite.svc.Charge(ctx, params)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), payment.ID, retried.ID)
	assert.Equal(suite.T(), common.PaymentStatusFailed, retried.Status)
	chargeCalls, _, _ := suite.mock.counts()
	assert.Equal(suite.T(), 1, chargeCalls)
}

func TestChargeTestSuite(t *testing.T) {
	suite.Run(t, new(ChargeTestSuite))
}
