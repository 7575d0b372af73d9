package controllers

import (
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"

	"github.com/shauritanga/rtexpress-payments/gateway"
	"github.com/shauritanga/rtexpress-payments/lib/responses"
	"github.com/shauritanga/rtexpress-payments/lib/service"
)

// PaymentController : Create payment controller struct
type PaymentController struct {
	svc *service.PaymentsService
}

func NewPaymentController(svc *service.PaymentsService) *PaymentController {
	return &PaymentController{svc: svc}
}

type CreatePaymentRequestBody struct {
	InvoiceID       int64  `json:"invoice_id" validate:"required"`
	Amount          int64  `json:"amount" validate:"required,gt=0"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
	Gateway         string `json:"gateway" validate:"omitempty,oneof=stripe paypal mpesa"`
	ClientRequestID string `json:"client_request_id" validate:"required,max=128"`
	PhoneNumber     string `json:"phone_number" validate:"omitempty,e164"`
}

func (controller *PaymentController) CreatePayment(c echo.Context) error {
	reqBody := CreatePaymentRequestBody{}
	if err := c.Bind(&reqBody); err != nil {
		c.Logger().Errorf("Failed to load create payment request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&reqBody); err != nil {
		c.Logger().Errorf("Invalid create payment request body: %v", err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	payment, err := controller.svc.Charge(c.Request().Context(), service.ChargeParams{
		InvoiceID:       reqBody.InvoiceID,
		Amount:          reqBody.Amount,
		Currency:        reqBody.Currency,
		Gateway:         reqBody.Gateway,
		ClientRequestID: reqBody.ClientRequestID,
		PhoneNumber:     reqBody.PhoneNumber,
	})
	if err != nil {
		if ge, ok := gateway.AsError(err); ok {
			c.Logger().Errorf("Charge rejected by gateway invoice_id:%v error: %v", reqBody.InvoiceID, err)
			resp := gatewayErrorResponse(ge)
			return c.JSON(resp.HttpStatusCode, resp)
		}
		if resp, ok := serviceErrorResponse(err); ok {
			c.Logger().Errorf("Charge refused invoice_id:%v error: %v", reqBody.InvoiceID, err)
			return c.JSON(resp.HttpStatusCode, resp)
		}
		c.Logger().Errorf("Failed to create payment invoice_id:%v error: %v", reqBody.InvoiceID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, payment)
}

// serviceErrorResponse maps the payments core's sentinel errors onto the
// fixed response catalog.
func serviceErrorResponse(err error) (responses.ErrorResponse, bool) {
	switch {
	case errors.Is(err, service.ErrInvoiceNotFound):
		return responses.InvoiceNotFoundError, true
	case errors.Is(err, service.ErrPaymentNotFound):
		return responses.PaymentNotFoundError, true
	case errors.Is(err, service.ErrInvoiceNotPayable):
		return responses.InvoiceNotPayableError, true
	case errors.Is(err, service.ErrAmountExceedsBalance):
		return responses.AmountExceedsBalanceError, true
	case errors.Is(err, service.ErrCurrencyMismatch):
		return responses.CurrencyMismatchError, true
	case errors.Is(err, service.ErrUnknownGateway):
		return responses.UnknownGatewayError, true
	case errors.Is(err, service.ErrInvalidSignature):
		return responses.InvalidSignatureError, true
	case errors.Is(err, service.ErrEventInFlight):
		return responses.EventInFlightError, true
	case errors.Is(err, service.ErrEventParked):
		return responses.EventParkedError, true
	case errors.Is(err, service.ErrPaymentNotRefundable):
		return responses.PaymentNotRefundableError, true
	case errors.Is(err, service.ErrRefundExceedsPayment):
		return responses.RefundExceedsPaymentError, true
	default:
		return responses.ErrorResponse{}, false
	}
}

// gatewayErrorResponse maps the normalized gateway failure taxonomy onto the
// response catalog, with the human-readable decline reason as the message.
func gatewayErrorResponse(ge *gateway.Error) responses.ErrorResponse {
	switch ge.Code {
	case gateway.ErrCodeGatewayUnavailable:
		return responses.GatewayUnavailableError
	case gateway.ErrCodeInsufficientFunds, gateway.ErrCodeCardDeclined:
		resp := responses.PaymentDeclinedError
		resp.Message = gateway.DeclineMessage(ge.Code)
		return resp
	default:
		return responses.BadArgumentsError
	}
}
