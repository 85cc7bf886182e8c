// Package sse writes UI message stream frames as server-sent events.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/xiaot623/chatrelay/internal/domain"
)

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// Writer encodes each frame as one `data: <json>` event and flushes it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps an http.ResponseWriter. The writer must support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// WriteFrame writes a single frame.
func (s *Writer) WriteFrame(frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return s.writeData(data)
}

// WriteDone writes the [DONE] terminator.
func (s *Writer) WriteDone() error {
	return s.writeData([]byte(domain.DoneMarker))
}

func (s *Writer) writeData(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
