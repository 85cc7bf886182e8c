package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xiaot623/chatrelay/internal/agent"
	"github.com/xiaot623/chatrelay/internal/domain"
)

// ResolveSession returns the session for (userID, sessionID), creating it
// when sessionID is empty or unknown. An unknown id is reused for the new
// session; an empty one is assigned by the runtime.
func (s *Service) ResolveSession(ctx context.Context, userID, sessionID string) (*agent.Session, error) {
	sessions := s.runtime.SessionService()
	appName := s.runtime.AppName()

	if sessionID != "" {
		sess, err := sessions.Get(ctx, appName, userID, sessionID)
		if err != nil {
			slog.Warn("session lookup failed, creating a new session",
				"session_id", sessionID, "user_id", userID, "error", err)
		} else if sess != nil {
			return sess, nil
		}
	}

	sess, err := sessions.Create(ctx, appName, userID, sessionID)
	if err != nil {
		return nil, err
	}
	slog.Info("session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// GetSessionHistory returns the text turns of a session. The bool is false
// when the session does not exist.
func (s *Service) GetSessionHistory(ctx context.Context, userID, sessionID string) ([]domain.HistoryMessage, bool, error) {
	sess, err := s.runtime.SessionService().Get(ctx, s.runtime.AppName(), userID, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return nil, false, nil
	}

	messages := []domain.HistoryMessage{}
	for _, ev := range sess.Events {
		if ev.Partial || ev.Content == nil {
			continue
		}
		text := ev.Content.Text()
		if text == "" {
			continue
		}
		role := "assistant"
		if ev.Content.Role == agent.RoleUser {
			role = "user"
		}
		messages = append(messages, domain.HistoryMessage{
			Role:      role,
			Content:   text,
			CreatedAt: ev.Timestamp,
		})
	}
	return messages, true, nil
}
