package controllers

import (
	"net/http"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"

	"github.com/shauritanga/rtexpress-payments/gateway"
	"github.com/shauritanga/rtexpress-payments/lib/responses"
	"github.com/shauritanga/rtexpress-payments/lib/service"
)

// RefundController : Refund payment controller struct
type RefundController struct {
	svc *service.PaymentsService
}

func NewRefundController(svc *service.PaymentsService) *RefundController {
	return &RefundController{svc: svc}
}

type CreateRefundRequestBody struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,max=256"`
}

func (controller *RefundController) CreateRefund(c echo.Context) error {
	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	reqBody := CreateRefundRequestBody{}
	if err := c.Bind(&reqBody); err != nil {
		c.Logger().Errorf("Failed to load refund request body payment_id:%v error: %v", paymentID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if err := c.Validate(&reqBody); err != nil {
		c.Logger().Errorf("Invalid refund request body payment_id:%v error: %v", paymentID, err)
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}

	refund, err := controller.svc.Refund(c.Request().Context(), paymentID, reqBody.Amount, reqBody.Reason)
	if err != nil {
		if ge, ok := gateway.AsError(err); ok {
			c.Logger().Errorf("Refund rejected by gateway payment_id:%v error: %v", paymentID, err)
			resp := gatewayErrorResponse(ge)
			return c.JSON(resp.HttpStatusCode, resp)
		}
		if resp, ok := serviceErrorResponse(err); ok {
			c.Logger().Errorf("Refund refused payment_id:%v error: %v", paymentID, err)
			return c.JSON(resp.HttpStatusCode, resp)
		}
		c.Logger().Errorf("Failed to refund payment_id:%v error: %v", paymentID, err)
		sentry.CaptureException(err)
		return c.JSON(http.StatusInternalServerError, responses.GeneralServerError)
	}

	return c.JSON(http.StatusOK, refund)
}
