package controllers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shauritanga/rtexpress-payments/lib/service"
)

// HealthController : Health check controller struct
type HealthController struct {
	svc *service.PaymentsService
}

func NewHealthController(svc *service.PaymentsService) *HealthController {
	return &HealthController{svc: svc}
}

func (controller *HealthController) Health(c echo.Context) error {
	if err := controller.svc.DB.PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unhealthy"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
