package server

import (
	"github.com/labstack/echo/v4"
)

// MountEcho serves the router inside an existing echo instance, under the
// router's base path plus /metrics when enabled.
func MountEcho(e *echo.Echo, r *Router) {
	h := echo.WrapHandler(r.Handler())
	base := r.BasePath()
	if base != "" {
		e.Any(base, h)
	}
	e.Any(base+"/*", h)
	if r.metrics && base != "" {
		e.GET("/metrics", h)
	}
}
