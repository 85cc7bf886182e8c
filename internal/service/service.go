// Package service holds the relay logic between HTTP transports and the agent runtime.
package service

import (
	"context"
	"fmt"
	"iter"

	"github.com/xiaot623/chatrelay/internal/agent"
	"github.com/xiaot623/chatrelay/internal/domain"
)

// Runtime is the agent runtime the relay forwards turns to. *agent.Runner
// implements it.
type Runtime interface {
	AppName() string
	SessionService() agent.SessionService
	Run(ctx context.Context, userID, sessionID string, newMessage *agent.Content, cfg agent.RunConfig) iter.Seq2[*agent.Event, error]
}

type Service struct {
	runtime   Runtime
	runConfig agent.RunConfig
}

func New(runtime Runtime, runConfig agent.RunConfig) *Service {
	return &Service{
		runtime:   runtime,
		runConfig: runConfig,
	}
}

// Turn is a validated request ready to stream.
type Turn struct {
	UserID    string
	SessionID string
	Text      string
}

// PrepareTurn validates a raw chat body and resolves its session. Validation
// failures satisfy domain.IsValidationError; anything else is a server error.
func (s *Service) PrepareTurn(ctx context.Context, body []byte) (*Turn, error) {
	req, err := domain.DecodeChatRequest(body)
	if err != nil {
		return nil, err
	}

	text, err := ExtractUserText(req)
	if err != nil {
		return nil, err
	}

	sess, err := s.ResolveSession(ctx, req.UserID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}

	return &Turn{
		UserID:    req.UserID,
		SessionID: sess.ID,
		Text:      text,
	}, nil
}

// StreamTurn runs the turn and writes its frames to w. The returned error is
// the first write failure, if any; turn failures are reported in-stream.
func (s *Service) StreamTurn(ctx context.Context, turn *Turn, w FrameWriter) error {
	msg := agent.NewTextContent(agent.RoleUser, turn.Text)
	events := s.runtime.Run(ctx, turn.UserID, turn.SessionID, msg, s.runConfig)
	return Translate(events, turn.SessionID, w)
}
