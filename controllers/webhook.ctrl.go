package controllers

import (
	"io"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"

	"github.com/shauritanga/rtexpress-payments/gateway"
	"github.com/shauritanga/rtexpress-payments/lib/responses"
	"github.com/shauritanga/rtexpress-payments/lib/service"
)

// WebhookController receives gateway callbacks. The body is consumed raw:
// signature schemes are computed over the exact bytes the gateway sent, so
// nothing may re-encode the payload before verification.
type WebhookController struct {
	svc *service.PaymentsService
}

func NewWebhookController(svc *service.PaymentsService) *WebhookController {
	return &WebhookController{svc: svc}
}

func (controller *WebhookController) ReceiveWebhook(c echo.Context) error {
	gatewayName := c.Param("gateway")
	adapter, ok := controller.svc.Gateways[gatewayName]
	if !ok {
		return c.JSON(http.StatusNotFound, responses.UnknownGatewayError)
	}

	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		c.Logger().Errorf("Failed to read webhook body gateway:%v error: %v", gatewayName, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	signatureHeader := c.Request().Header.Get(adapter.SignatureHeader())

	err = controller.svc.IngestWebhook(c.Request().Context(), gatewayName, rawBody, signatureHeader)
	if err != nil {
		if ge, ok := gateway.AsError(err); ok && ge.Code == gateway.ErrCodeInvalidRequest {
			c.Logger().Errorf("Rejected malformed webhook gateway:%v error: %v", gatewayName, err)
			return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
		}
		if resp, ok := serviceErrorResponse(err); ok {
			c.Logger().Errorf("Webhook not applied gateway:%v error: %v", gatewayName, err)
			return c.JSON(resp.HttpStatusCode, resp)
		}
		c.Logger().Errorf("Failed to process webhook gateway:%v error: %v", gatewayName, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	return c.NoContent(http.StatusOK)
}
