package domain

import "strings"

// Frame types of the UI message stream protocol.
const (
	FrameStart     = "start"
	FrameTextStart = "text-start"
	FrameTextDelta = "text-delta"
	FrameTextEnd   = "text-end"
	FrameError     = "error"
	FrameFinish    = "finish"
)

// DoneMarker terminates every stream.
const DoneMarker = "[DONE]"

// TextBlockID is the id of the single text block a response can open.
const TextBlockID = "0"

// Frame is one event of the UI message stream.
type Frame struct {
	Type            string           `json:"type"`
	ID              string           `json:"id,omitempty"`
	MessageID       string           `json:"messageId,omitempty"`
	Delta           string           `json:"delta,omitempty"`
	ErrorText       string           `json:"errorText,omitempty"`
	MessageMetadata *MessageMetadata `json:"messageMetadata,omitempty"`
}

// MessageMetadata carries the session id back to the client.
type MessageMetadata struct {
	SessionID string `json:"sessionId"`
}

// StartFrame opens a response.
func StartFrame(messageID, sessionID string) Frame {
	return Frame{Type: FrameStart, MessageID: messageID, MessageMetadata: &MessageMetadata{SessionID: sessionID}}
}

// TextStartFrame opens the text block.
func TextStartFrame() Frame {
	return Frame{Type: FrameTextStart, ID: TextBlockID}
}

// TextDeltaFrame carries one text fragment.
func TextDeltaFrame(delta string) Frame {
	return Frame{Type: FrameTextDelta, ID: TextBlockID, Delta: delta}
}

// TextEndFrame closes the text block.
func TextEndFrame() Frame {
	return Frame{Type: FrameTextEnd, ID: TextBlockID}
}

// UnknownErrorText stands in for a failure that carries no message.
const UnknownErrorText = "unknown error"

// ErrorFrame reports a turn failure. The frame always has a non-empty
// errorText.
func ErrorFrame(text string) Frame {
	if strings.TrimSpace(text) == "" {
		text = UnknownErrorText
	}
	return Frame{Type: FrameError, ErrorText: text}
}

// FinishFrame closes a response.
func FinishFrame(sessionID string) Frame {
	return Frame{Type: FrameFinish, MessageMetadata: &MessageMetadata{SessionID: sessionID}}
}
