// Package ws serves the chat relay over WebSocket connections.
package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/chatrelay/internal/config"
	"github.com/xiaot623/chatrelay/internal/domain"
	"github.com/xiaot623/chatrelay/internal/service"
)

// Server handles WebSocket chat connections. Every inbound text message is a
// chat request; the reply frames are sent back as text messages.
type Server struct {
	service      *service.Service
	maxMessage   int64
	readTimeout  time.Duration
	writeTimeout time.Duration
	pingInterval time.Duration
	upgrader     websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, svc *service.Service) *Server {
	return &Server{
		service:      svc,
		maxMessage:   cfg.WSMaxMessageSize,
		readTimeout:  cfg.WSReadTimeout(),
		writeTimeout: cfg.WSWriteTimeout(),
		pingInterval: cfg.WSPingInterval(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the connection and serves turns until the client
// disconnects.
// GET /chat/ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("failed to upgrade websocket", "error", err)
		return err
	}
	defer conn.Close()

	if s.maxMessage > 0 {
		conn.SetReadLimit(s.maxMessage)
	}
	conn.SetPongHandler(func(string) error {
		return s.extendReadDeadline(conn)
	})

	stop := make(chan struct{})
	defer close(stop)
	go s.keepAlive(conn, stop)

	ctx := c.Request().Context()
	w := newFrameWriter(conn, s.writeTimeout)

	for {
		if err := s.extendReadDeadline(conn); err != nil {
			return nil
		}
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("websocket read failed", "error", err)
			}
			return nil
		}
		if msgType != websocket.TextMessage {
			continue
		}

		turn, err := s.service.PrepareTurn(ctx, data)
		if err != nil {
			if !domain.IsValidationError(err) {
				slog.Error("failed to prepare chat turn", "error", err)
			}
			if werr := w.WriteFrame(domain.ErrorFrame(err.Error())); werr != nil {
				return nil
			}
			continue
		}

		if err := s.service.StreamTurn(ctx, turn, w); err != nil {
			slog.Warn("websocket stream aborted", "session_id", turn.SessionID, "error", err)
			return nil
		}
	}
}

func (s *Server) extendReadDeadline(conn *websocket.Conn) error {
	if s.readTimeout <= 0 {
		return nil
	}
	return conn.SetReadDeadline(time.Now().Add(s.readTimeout))
}

// keepAlive pings the peer until stop is closed. WriteControl may run
// concurrently with the frame writer.
func (s *Server) keepAlive(conn *websocket.Conn, stop <-chan struct{}) {
	if s.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
