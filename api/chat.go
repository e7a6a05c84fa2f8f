package api

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/auth"
	"chatrelay/domain"
)

// ChatRequest is the inbound relay request.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatReply is the successful relay response.
type ChatReply struct {
	Reply string `json:"reply"`
}

// ChatError is the error relay response.
type ChatError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// PostChat relays one human message to the completion provider.
// POST /chat
//
// The two persistence steps are best effort: a storage failure is logged and
// the pipeline continues, so user-facing latency never blocks on durability.
// The provider call is authoritative for the response.
func (h *Handler) PostChat(c echo.Context) error {
	ctx := c.Request().Context()

	identity, ok := auth.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ChatError{Error: "Unauthorized"})
	}

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ChatError{Error: "invalid request body"})
	}

	// Persist the human message.
	human := &domain.Message{
		OwnerID: identity.UserID,
		Text:    req.Message,
		IsBot:   false,
	}
	if err := h.store.InsertMessage(ctx, human); err != nil {
		log.Printf("ERROR: failed to save user message: %v", err)
	}

	reply, err := h.provider.Complete(ctx, req.Message)
	if err != nil {
		// A failed call produces no reply artifact.
		log.Printf("ERROR: completion provider failed: %v", err)
		return c.JSON(http.StatusInternalServerError, ChatError{
			Error:   "completion provider failed",
			Details: err.Error(),
		})
	}

	// Persist the bot reply.
	bot := &domain.Message{
		OwnerID: identity.UserID,
		Text:    reply,
		IsBot:   true,
	}
	if err := h.store.InsertMessage(ctx, bot); err != nil {
		log.Printf("ERROR: failed to save bot message: %v", err)
	}

	return c.JSON(http.StatusOK, ChatReply{Reply: reply})
}
