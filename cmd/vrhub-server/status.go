package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/vrhub/collab/server/internal/hub"
)

// newStatusServer builds the operator-facing HTTP/1.1 status surface: a
// plain JSON snapshot of hub.Stats, served alongside (not instead of) the
// HTTP/3 WebTransport listener, since the two speak different protocol
// versions and can't share a port.
func newStatusServer(h *hub.Hub, log *zap.SugaredLogger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e.GET("/status", func(c echo.Context) error {
		messages, bytes, clients := h.Stats()
		return c.JSON(http.StatusOK, map[string]any{
			"clients":  clients,
			"messages": messages,
			"bytes":    bytes,
		})
	})

	return e
}
