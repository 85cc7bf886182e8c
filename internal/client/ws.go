package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/chatrelay/internal/domain"
)

// WSClient talks to the relay's websocket endpoint. It is not safe for
// concurrent turns.
type WSClient struct {
	conn *websocket.Conn
}

// DialWS connects to a GET /chat/ws endpoint, e.g. ws://localhost:8000/chat/ws.
func DialWS(ctx context.Context, url string) (*WSClient, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("dial: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &WSClient{conn: conn}, nil
}

// Chat sends one turn and delivers the reply frames to handler until [DONE].
// A lone error frame before any start frame is a rejected request and is
// returned as an error.
func (c *WSClient) Chat(ctx context.Context, req *ChatRequest, handler FrameHandler) (string, error) {
	if err := c.conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	var sessionID string
	started := false
	for {
		if err := ctx.Err(); err != nil {
			return sessionID, err
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return sessionID, fmt.Errorf("read frame: %w", err)
		}
		if string(data) == domain.DoneMarker {
			return sessionID, nil
		}

		var frame domain.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			return sessionID, fmt.Errorf("failed to parse frame: %w", err)
		}

		switch {
		case frame.Type == domain.FrameStart:
			started = true
			if frame.MessageMetadata != nil {
				sessionID = frame.MessageMetadata.SessionID
			}
		case frame.Type == domain.FrameError && !started:
			return "", errors.New(frame.ErrorText)
		}

		if err := handler(frame); err != nil {
			return sessionID, err
		}
	}
}

// Close sends a close message and closes the connection.
func (c *WSClient) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
	return c.conn.Close()
}
