package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"preview-proxy-go/internal/config"
	"preview-proxy-go/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves the reserved health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	service *service.ProxyService
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, svc *service.ProxyService, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, service: svc, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information so the collaborator can correlate
// a proxy instance with its preview session.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":          "ok",
		"version":         string(h.version),
		"upstream_origin": h.service.Origin().String(),
		"listen_addr":     h.cfg.Server.Addr(),
	})
}
