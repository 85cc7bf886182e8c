package v1

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/chatrelay/internal/domain"
	"github.com/xiaot623/chatrelay/internal/transport/sse"
)

// Response headers of the chat stream.
const (
	HeaderSessionID       = "x-session-id"
	HeaderAccelBuffering  = "x-accel-buffering"
	HeaderUIMessageStream = "x-vercel-ai-ui-message-stream"
)

// Chat relays one user turn to the agent and streams the reply as SSE.
// POST /chat
func (h *Handler) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return c.JSON(http.StatusBadRequest, map[string]string{"error": domain.ErrInvalidBody.Error()})
	}

	turn, err := h.service.PrepareTurn(ctx, body)
	if err != nil {
		if domain.IsValidationError(err) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		slog.Error("failed to prepare chat turn", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	w, err := sse.NewWriter(c.Response())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set(HeaderAccelBuffering, "no")
	header.Set(HeaderUIMessageStream, "v1")
	header.Set(HeaderSessionID, turn.SessionID)
	c.Response().WriteHeader(http.StatusOK)

	if err := h.service.StreamTurn(ctx, turn, w); err != nil {
		// Can't change status code after writing response
		slog.Warn("chat stream aborted", "session_id", turn.SessionID, "error", err)
	}
	return nil
}
