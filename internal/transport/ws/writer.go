package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/chatrelay/internal/domain"
)

// frameWriter sends each frame as one text message.
type frameWriter struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func newFrameWriter(conn *websocket.Conn, timeout time.Duration) *frameWriter {
	return &frameWriter{conn: conn, timeout: timeout}
}

func (w *frameWriter) WriteFrame(frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return w.write(data)
}

func (w *frameWriter) WriteDone() error {
	return w.write([]byte(domain.DoneMarker))
}

func (w *frameWriter) write(data []byte) error {
	if w.timeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
			return err
		}
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}
