package domain

import (
	"encoding/json"
	"errors"
)

// DefaultUserID is used when a request carries no usable user_id.
const DefaultUserID = "anonymous"

// Request validation errors. Their text is returned to the client.
var (
	ErrInvalidBody     = errors.New("invalid request body")
	ErrMessagesNotList = errors.New("messages must be a list")
	ErrNoUserMessage   = errors.New("no user message provided")
)

// ChatRequest is the loosely-typed payload accepted by POST /chat.
type ChatRequest struct {
	Messages  []Message
	UserID    string
	SessionID string
	Input     string
	Message   string
}

// ContentPart is one element of an array-valued message content.
type ContentPart struct {
	Text string
}

// TypedPart is one element of a message's parts array.
type TypedPart struct {
	Type string
	Text string
}

// Message is a tagged union over the two UI message shapes:
// {role, content: string | [{text}]} and {role, parts: [{type, text}]}.
// Only the fields that carried the expected JSON type are populated.
type Message struct {
	Role string

	// ContentText is set when content was a JSON string.
	ContentText *string
	// ContentParts holds the string-valued text fragments of an array content.
	ContentParts []ContentPart
	// Parts holds the parts array entries that carried a string text.
	Parts []TypedPart
}

// DecodeChatRequest parses a raw body. It fails with ErrInvalidBody when the
// body is not a JSON object and ErrMessagesNotList when messages is present
// but not an array. Fields of unexpected types are otherwise ignored.
func DecodeChatRequest(body []byte) (*ChatRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, ErrInvalidBody
	}

	req := &ChatRequest{}

	if raw, ok := fields["messages"]; ok && !isNull(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, ErrMessagesNotList
		}
		for _, item := range items {
			if msg, ok := decodeMessage(item); ok {
				req.Messages = append(req.Messages, msg)
			}
		}
	}

	req.UserID = stringField(fields, "user_id")
	if req.UserID == "" {
		req.UserID = DefaultUserID
	}
	req.SessionID = stringField(fields, "session_id")
	if req.SessionID == "" {
		req.SessionID = stringField(fields, "sessionId")
	}
	req.Input = stringField(fields, "input")
	req.Message = stringField(fields, "message")

	return req, nil
}

func decodeMessage(raw json.RawMessage) (Message, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Message{}, false
	}

	msg := Message{Role: stringField(fields, "role")}

	if content, ok := fields["content"]; ok {
		if text, ok := stringValue(content); ok {
			msg.ContentText = &text
		} else {
			for _, obj := range objectArray(content) {
				if t, ok := stringValue(obj["text"]); ok {
					msg.ContentParts = append(msg.ContentParts, ContentPart{Text: t})
				}
			}
		}
	}

	if parts, ok := fields["parts"]; ok {
		for _, obj := range objectArray(parts) {
			t, ok := stringValue(obj["text"])
			if !ok {
				continue
			}
			typ, _ := stringValue(obj["type"])
			msg.Parts = append(msg.Parts, TypedPart{Type: typ, Text: t})
		}
	}

	return msg, true
}

// objectArray returns the object elements of a JSON array, skipping anything
// else. A non-array value yields nil.
func objectArray(raw json.RawMessage) []map[string]json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	var out []map[string]json.RawMessage
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err == nil && obj != nil {
			out = append(out, obj)
		}
	}
	return out
}

func stringField(fields map[string]json.RawMessage, key string) string {
	s, _ := stringValue(fields[key])
	return s
}

func stringValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || isNull(raw) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

// IsValidationError reports whether err is a request validation failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidBody) || errors.Is(err, ErrMessagesNotList) || errors.Is(err, ErrNoUserMessage)
}
