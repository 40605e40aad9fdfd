package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Health and
// status live under the reserved /__preview/ prefix so they cannot shadow
// routes of the previewed application; everything else is proxied.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/__preview/healthz", health.Healthz)
	e.GET("/__preview/status", health.Status)

	e.Any("/", proxy.Handle)
	e.Any("/*", proxy.Handle)
}
