// Package agent is the conversational agent runtime the relay talks to.
//
// It owns sessions (keyed by app name, user id and session id) and runs agent
// turns, producing a lazy sequence of events. The relay only uses the
// SessionService lookup/creation calls and Runner.Run.
package agent

import (
	"strings"
	"time"
)

// Content roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// StreamingMode selects how a turn's text reaches the caller.
type StreamingMode string

const (
	// StreamingModeNone yields a single event with the complete reply.
	StreamingModeNone StreamingMode = "none"
	// StreamingModeSSE yields one partial event per model chunk.
	StreamingModeSSE StreamingMode = "sse"
)

// RunConfig tunes a single turn.
type RunConfig struct {
	StreamingMode StreamingMode
	// MaxLLMCalls bounds model calls per turn. A reply cut off at the token
	// limit is continued with another call. Zero or less means unbounded.
	MaxLLMCalls int
}

// DefaultRunConfig is the configuration the relay runs turns with.
func DefaultRunConfig() RunConfig {
	return RunConfig{StreamingMode: StreamingModeSSE, MaxLLMCalls: 200}
}

// Part is one fragment of content.
type Part struct {
	Text string `json:"text,omitempty"`
}

// Content is a role-tagged list of parts.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewTextContent builds single-part content.
func NewTextContent(role, text string) *Content {
	return &Content{Role: role, Parts: []Part{{Text: text}}}
}

// Text concatenates the text of all parts.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// Event is an incremental unit of agent output.
type Event struct {
	ID           string    `json:"id"`
	InvocationID string    `json:"invocation_id"`
	Author       string    `json:"author"`
	Content      *Content  `json:"content,omitempty"`
	Partial      bool      `json:"partial,omitempty"`
	TurnComplete bool      `json:"turn_complete,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Error codes carried by runtime error events.
const (
	ErrorCodePolicyBlocked       = "POLICY_BLOCKED"
	ErrorCodeMaxLLMCallsExceeded = "MAX_LLM_CALLS_EXCEEDED"
)
