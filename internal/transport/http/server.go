// Package http provides the HTTP server of the chat relay.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/chatrelay/internal/config"
	"github.com/xiaot623/chatrelay/internal/service"
	v1 "github.com/xiaot623/chatrelay/internal/transport/http/v1"
	"github.com/xiaot623/chatrelay/internal/transport/ws"
)

// NewServer creates the client-facing HTTP server: the SSE chat endpoint,
// the websocket chat endpoint and the session history API.
func NewServer(cfg *config.Config, svc *service.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if cfg.HTTPBodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.HTTPBodyLimit))
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  cfg.CORSAllowOrigins,
		ExposeHeaders: []string{v1.HeaderSessionID},
	}))

	// Handlers
	v1Handler := v1.NewHandler(svc)
	wsServer := ws.NewServer(cfg, svc)

	// Register Routes
	v1Handler.RegisterRoutes(e)
	e.GET("/chat/ws", wsServer.HandleWebSocket)

	return e
}
