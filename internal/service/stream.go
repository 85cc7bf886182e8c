package service

import (
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/xiaot623/chatrelay/internal/agent"
	"github.com/xiaot623/chatrelay/internal/domain"
)

// FrameWriter delivers frames to a client transport.
type FrameWriter interface {
	WriteFrame(frame domain.Frame) error
	// WriteDone writes the terminal [DONE] marker.
	WriteDone() error
}

// translator tracks the open text block and the first write failure.
type translator struct {
	w         FrameWriter
	streaming bool
	err       error
}

// Translate re-encodes a turn's event sequence as UI message stream frames.
//
// The output always starts with one start frame and ends with one finish frame
// and the [DONE] marker, whatever happens in between: runtime error events,
// sequence errors and panics become a single error frame, and an open text
// block is closed before finish. A write failure stops consumption of events.
func Translate(events iter.Seq2[*agent.Event, error], sessionID string, w FrameWriter) (err error) {
	t := &translator{w: w}
	t.emit(domain.StartFrame(uuid.New().String(), sessionID))

	defer func() {
		if p := recover(); p != nil {
			slog.Error("panic while streaming turn", "session_id", sessionID, "panic", p)
			t.emit(domain.ErrorFrame(fmt.Sprint(p)))
		}
		if t.streaming {
			t.endText()
		}
		t.emit(domain.FinishFrame(sessionID))
		if doneErr := w.WriteDone(); doneErr != nil && t.err == nil {
			t.err = doneErr
		}
		err = t.err
	}()

	if t.err != nil {
		return
	}
	t.consume(events)
	return
}

func (t *translator) consume(events iter.Seq2[*agent.Event, error]) {
	for ev, err := range events {
		if err != nil {
			t.emit(domain.ErrorFrame(err.Error()))
			return
		}
		if ev == nil {
			continue
		}
		if ev.ErrorMessage != "" {
			t.emit(domain.ErrorFrame(ev.ErrorMessage))
			return
		}

		if texts := textParts(ev); len(texts) > 0 {
			if !t.streaming {
				t.emit(domain.TextStartFrame())
				t.streaming = true
			}
			for _, text := range texts {
				t.emit(domain.TextDeltaFrame(text))
			}
		}

		if ev.TurnComplete && t.streaming {
			t.endText()
		}

		if t.err != nil {
			return
		}
	}
}

func (t *translator) endText() {
	t.emit(domain.TextEndFrame())
	t.streaming = false
}

// emit writes a frame, keeping the first error.
func (t *translator) emit(frame domain.Frame) {
	if err := t.w.WriteFrame(frame); err != nil && t.err == nil {
		t.err = err
	}
}

// textParts returns the non-empty text fragments of an event in order.
func textParts(ev *agent.Event) []string {
	if ev.Content == nil {
		return nil
	}
	var texts []string
	for _, p := range ev.Content.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return texts
}
