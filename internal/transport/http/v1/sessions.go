package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/chatrelay/internal/domain"
)

// GetSessionMessages returns the text history of a session.
// GET /sessions/:session_id/messages?user_id=
func (h *Handler) GetSessionMessages(c echo.Context) error {
	sessionID := c.Param("session_id")
	userID := c.QueryParam("user_id")
	if userID == "" {
		userID = domain.DefaultUserID
	}

	messages, found, err := h.service.GetSessionHistory(c.Request().Context(), userID, sessionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if !found {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   messages,
	})
}
