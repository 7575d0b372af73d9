package responses

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error          bool   `json:"error"`
	Code           int    `json:"code"`
	Message        string `json:"message"`
	HttpStatusCode int    `json:"-"`
}

var GeneralServerError = ErrorResponse{
	Error:          true,
	Code:           6,
	Message:        "Something went wrong. Please try again later",
	HttpStatusCode: 500,
}

var BadArgumentsError = ErrorResponse{
	Error:          true,
	Code:           8,
	Message:        "Bad arguments",
	HttpStatusCode: 400,
}

var InvoiceNotFoundError = ErrorResponse{
	Error:          true,
	Code:           10,
	Message:        "invoice not found",
	HttpStatusCode: 404,
}

var PaymentNotFoundError = ErrorResponse{
	Error:          true,
	Code:           11,
	Message:        "payment not found",
	HttpStatusCode: 404,
}

var AmountExceedsBalanceError = ErrorResponse{
	Error:          true,
	Code:           12,
	Message:        "amount exceeds the invoice balance due",
	HttpStatusCode: 400,
}

var InvoiceNotPayableError = ErrorResponse{
	Error:          true,
	Code:           13,
	Message:        "invoice is not payable",
	HttpStatusCode: 400,
}

var UnknownGatewayError = ErrorResponse{
	Error:          true,
	Code:           14,
	Message:        "unknown or disabled payment gateway",
	HttpStatusCode: 400,
}

var GatewayUnavailableError = ErrorResponse{
	Error:          true,
	Code:           15,
	Message:        "the payment provider is temporarily unavailable. please try again",
	HttpStatusCode: 503,
}

var PaymentDeclinedError = ErrorResponse{
	Error:          true,
	Code:           16,
	Message:        "the payment was declined",
	HttpStatusCode: 402,
}

var RefundExceedsPaymentError = ErrorResponse{
	Error:          true,
	Code:           17,
	Message:        "refund amount exceeds the refundable payment amount",
	HttpStatusCode: 400,
}

var PaymentNotRefundableError = ErrorResponse{
	Error:          true,
	Code:           18,
	Message:        "payment is not in a refundable state",
	HttpStatusCode: 400,
}

var InvalidSignatureError = ErrorResponse{
	Error:          true,
	Code:           19,
	Message:        "invalid webhook signature",
	HttpStatusCode: 400,
}

var EventInFlightError = ErrorResponse{
	Error:          true,
	Code:           20,
	Message:        "event is being processed, retry later",
	HttpStatusCode: 409,
}

var EventParkedError = ErrorResponse{
	Error:          true,
	Code:           21,
	Message:        "event was set aside for manual review",
	HttpStatusCode: 422,
}

var CurrencyMismatchError = ErrorResponse{
	Error:          true,
	Code:           22,
	Message:        "currency does not match the invoice currency",
	HttpStatusCode: 400,
}

func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	c.Logger().Error(err)
	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("RequestID", c.Response().Header().Get(echo.HeaderXRequestID))
			hub.CaptureException(err)
		})
	}
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, he.Message)
	} else {
		c.JSON(http.StatusInternalServerError, GeneralServerError)
	}
}
