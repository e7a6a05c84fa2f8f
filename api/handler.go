// Package api provides HTTP handlers for the relay server.
package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/config"
	"chatrelay/store"
)

// Completer issues one completion request per inbound message.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Handler handles HTTP requests.
type Handler struct {
	store    store.Store
	provider Completer
	config   *config.Config
}

// NewHandler creates a new handler.
func NewHandler(st store.Store, provider Completer, cfg *config.Config) *Handler {
	return &Handler{
		store:    st,
		provider: provider,
		config:   cfg,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Relay API
	e.POST("/chat", h.PostChat)
	e.GET("/messages", h.GetMessages)

	// Internal API (for the identity collaborator)
	e.POST("/internal/sessions", h.CreateSession)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
