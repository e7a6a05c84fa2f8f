package api

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"chatrelay/domain"
)

// CreateSessionRequest registers a session token for a user.
type CreateSessionRequest struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"user_id"`
}

// CreateSession registers a session issued by the identity collaborator.
// POST /internal/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ChatError{Error: "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, ChatError{Error: "user_id is required"})
	}

	token := req.Token
	if token == "" {
		token = "sess_" + uuid.New().String()
	}

	session := &domain.Session{Token: token, UserID: req.UserID}
	if err := h.store.CreateSession(ctx, session); err != nil {
		log.Printf("ERROR: failed to create session: %v", err)
		return c.JSON(http.StatusInternalServerError, ChatError{Error: "failed to create session"})
	}

	return c.JSON(http.StatusCreated, session)
}
