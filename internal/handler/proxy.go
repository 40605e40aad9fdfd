// Package handler wires the proxy, tunnel and status endpoints onto Echo.
package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"preview-proxy-go/internal/model"
	"preview-proxy-go/internal/rewrite"
	"preview-proxy-go/internal/service"
)

// ProxyHandler forwards preview traffic to the pinned upstream dev server.
type ProxyHandler struct {
	service *service.ProxyService
	tunnel  *TunnelHandler
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, tunnel *TunnelHandler, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		tunnel:  tunnel,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the upstream dev server. WebSocket upgrades
// are handed to the tunnel; everything else goes through the forwarder,
// which streams pass-through responses and buffers injectable HTML.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if isWebSocketUpgrade(req) {
		return h.tunnel.Serve(c)
	}

	pr := &model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		RequestURI: req.URL.RequestURI(),
		Header:     req.Header,
		Body:       req.Body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the body to the client. If io.Copy fails mid-stream (client
	// disconnect, network error), the status has already been sent, so the
	// client receives a truncated response with the original status. This is
	// an inherent trade-off of streaming proxies — log it and move on.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// mapError translates forwarding failures into client responses. Per-request
// errors never escape the request boundary: a target that cannot be built is
// the client's fault (400), a failed rewrite must not serve unpatched bytes
// (500), and anything else means the upstream is unreachable or broke (502).
// Error responses carry the CORS set too; without it a cross-origin fetch
// from the preview host cannot observe the failure status.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	dst := c.Response().Header()
	for key, vals := range rewrite.CORSHeaders(h.service.AllowOrigin()) {
		for _, v := range vals {
			dst.Add(key, v)
		}
	}

	switch {
	case errors.Is(err, service.ErrBadTarget):
		return c.String(http.StatusBadRequest, fmt.Sprintf("Bad request: %v", err))
	case errors.Is(err, service.ErrInjection):
		return c.String(http.StatusInternalServerError, fmt.Sprintf("Injection error: %v", err))
	default:
		return c.String(http.StatusBadGateway, fmt.Sprintf("Upstream error: %v", err))
	}
}

// isWebSocketUpgrade reports whether the request asks for a WebSocket
// protocol upgrade.
func isWebSocketUpgrade(req *http.Request) bool {
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, token := range strings.Split(req.Header.Get("Connection"), ",") {
		if strings.EqualFold(strings.TrimSpace(token), "upgrade") {
			return true
		}
	}
	return false
}
