package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"preview-proxy-go/internal/rewrite"
)

// Preflight returns an Echo middleware that answers CORS preflight requests
// locally. An OPTIONS request never reaches the upstream: the browser only
// needs the permissive header set to let the preview host embed proxied
// content, and the dev server being previewed cannot be assumed to answer
// preflights at all.
func Preflight(allowOrigin string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			h := c.Response().Header()
			for key, vals := range rewrite.CORSHeaders(allowOrigin) {
				for _, v := range vals {
					h.Add(key, v)
				}
			}
			return c.NoContent(http.StatusOK)
		}
	}
}
