package transport

import (
	"github.com/labstack/echo/v4"

	"github.com/shauritanga/rtexpress-payments/controllers"
	"github.com/shauritanga/rtexpress-payments/lib/service"
)

// RegisterEndpoints wires the payment API. Money-moving endpoints carry the
// strict rate limit; webhook receivers are exempt because gateways batch
// their retries and must never be throttled into another redelivery cycle.
func RegisterEndpoints(svc *service.PaymentsService, e *echo.Echo, strictRateLimitMiddleware echo.MiddlewareFunc, logMw echo.MiddlewareFunc) {
	e.GET("/health", controllers.NewHealthController(svc).Health)

	invoiceCtrl := controllers.NewInvoiceController(svc)
	e.GET("/v1/invoices/:id", invoiceCtrl.GetInvoice, logMw)
	e.GET("/v1/payments/:id", invoiceCtrl.GetPayment, logMw)
	e.GET("/v1/payments/:id/refunds", invoiceCtrl.GetPaymentRefunds, logMw)

	e.POST("/v1/payments", controllers.NewPaymentController(svc).CreatePayment, strictRateLimitMiddleware, logMw)
	e.POST("/v1/payments/:id/refunds", controllers.NewRefundController(svc).CreateRefund, strictRateLimitMiddleware, logMw)

	e.POST("/v1/webhooks/:gateway", controllers.NewWebhookController(svc).ReceiveWebhook, logMw)
}
