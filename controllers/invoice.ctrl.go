package controllers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shauritanga/rtexpress-payments/db/models"
	"github.com/shauritanga/rtexpress-payments/lib/responses"
	"github.com/shauritanga/rtexpress-payments/lib/service"
)

// InvoiceController : Invoice and payment read controller struct
type InvoiceController struct {
	svc *service.PaymentsService
}

func NewInvoiceController(svc *service.PaymentsService) *InvoiceController {
	return &InvoiceController{svc: svc}
}

type InvoiceResponseBody struct {
	Invoice           *models.Invoice  `json:"invoice"`
	Payments          []models.Payment `json:"payments"`
	CurrencyPrecision int              `json:"currency_precision"`
}

func (controller *InvoiceController) GetInvoice(c echo.Context) error {
	invoiceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	invoice, err := controller.svc.FindInvoice(c.Request().Context(), invoiceID)
	if err != nil {
		if resp, ok := serviceErrorResponse(err); ok {
			return c.JSON(resp.HttpStatusCode, resp)
		}
		return err
	}
	payments, err := controller.svc.PaymentsForInvoice(c.Request().Context(), invoiceID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &InvoiceResponseBody{
		Invoice:           invoice,
		Payments:          payments,
		CurrencyPrecision: controller.svc.Config.PrecisionFor(invoice.Currency),
	})
}

func (controller *InvoiceController) GetPayment(c echo.Context) error {
	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	payment, err := controller.svc.FindPayment(c.Request().Context(), paymentID)
	if err != nil {
		if resp, ok := serviceErrorResponse(err); ok {
			return c.JSON(resp.HttpStatusCode, resp)
		}
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

func (controller *InvoiceController) GetPaymentRefunds(c echo.Context) error {
	paymentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, responses.BadArgumentsError)
	}
	if _, err = controller.svc.FindPayment(c.Request().Context(), paymentID); err != nil {
		if resp, ok := serviceErrorResponse(err); ok {
			return c.JSON(resp.HttpStatusCode, resp)
		}
		return err
	}
	refunds, err := controller.svc.RefundsForPayment(c.Request().Context(), paymentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refunds)
}
