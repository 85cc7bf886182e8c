// Package client provides HTTP and WebSocket clients for the chat relay.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/chatrelay/internal/domain"
)

// errDone stops SSE parsing at the [DONE] marker.
var errDone = errors.New("stream done")

// ChatMessage is one message of a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body sent to POST /chat and over the websocket.
type ChatRequest struct {
	Messages  []ChatMessage `json:"messages"`
	UserID    string        `json:"user_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
}

// NewChatRequest builds a request carrying a single user message.
func NewChatRequest(userID, sessionID, text string) *ChatRequest {
	return &ChatRequest{
		Messages:  []ChatMessage{{Role: "user", Content: text}},
		UserID:    userID,
		SessionID: sessionID,
	}
}

// SSEEvent represents a parsed SSE event.
type SSEEvent struct {
	Event string
	Data  string
}

// FrameHandler is called for each frame of a reply, in order.
type FrameHandler func(frame domain.Frame) error

// Client is an HTTP client for the SSE chat endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new chat client for the relay at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for streaming
		},
	}
}

// Chat posts one turn and streams the reply frames to handler. It returns the
// session id the relay resolved for the turn.
func (c *Client) Chat(ctx context.Context, req *ChatRequest, handler FrameHandler) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp)
	}

	sessionID := resp.Header.Get("x-session-id")
	err = parseSSE(resp.Body, func(event SSEEvent) error {
		if event.Data == domain.DoneMarker {
			return errDone
		}
		frame, err := ParseFrame(event.Data)
		if err != nil {
			return err
		}
		if sessionID == "" && frame.MessageMetadata != nil {
			sessionID = frame.MessageMetadata.SessionID
		}
		return handler(*frame)
	})
	if err != nil && !errors.Is(err, errDone) {
		return sessionID, err
	}
	return sessionID, nil
}

// GetSessionMessages fetches the text history of a session.
func (c *Client) GetSessionMessages(ctx context.Context, userID, sessionID string) ([]domain.HistoryMessage, error) {
	url := fmt.Sprintf("%s/sessions/%s/messages", c.baseURL, sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if userID != "" {
		q := httpReq.URL.Query()
		q.Set("user_id", userID)
		httpReq.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to get session messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var out struct {
		Messages []domain.HistoryMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode session messages: %w", err)
	}
	return out.Messages, nil
}

// ParseFrame decodes the JSON data of one frame.
func ParseFrame(data string) (*domain.Frame, error) {
	var frame domain.Frame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}
	return &frame, nil
}

// statusError turns a non-200 response into an error, preferring the relay's
// {"error": ...} body.
func statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(bodyBytes))
}

// parseSSE parses an SSE stream and calls the handler for each event.
func parseSSE(reader io.Reader, handler func(SSEEvent) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var event SSEEvent

	for scanner.Scan() {
		line := scanner.Text()

		// Empty line marks end of event
		if line == "" {
			if event.Event != "" || event.Data != "" {
				if err := handler(event); err != nil {
					return err
				}
				event = SSEEvent{}
			}
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
			if event.Data != "" {
				event.Data += "\n" + data
			} else {
				event.Data = data
			}
		}
		// Ignore comments (lines starting with :) and other fields
	}

	if event.Event != "" || event.Data != "" {
		if err := handler(event); err != nil {
			return err
		}
	}

	return scanner.Err()
}
