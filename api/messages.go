package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/auth"
	"chatrelay/domain"
)

// GetMessages returns the full ordered transcript for the current owner.
// GET /messages
func (h *Handler) GetMessages(c echo.Context) error {
	ctx := c.Request().Context()

	identity, ok := auth.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ChatError{Error: "Unauthorized"})
	}

	messages, err := h.store.GetMessages(ctx, identity.UserID)
	if err != nil {
		log.Printf("ERROR: failed to get messages: %v", err)
		return c.JSON(http.StatusInternalServerError, ChatError{Error: "failed to get messages"})
	}
	if messages == nil {
		messages = []domain.Message{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}
