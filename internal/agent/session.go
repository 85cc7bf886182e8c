package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is a conversation context keyed by app, user and id.
type Session struct {
	ID             string
	AppName        string
	UserID         string
	Events         []*Event
	LastUpdateTime time.Time
}

// SessionService stores sessions and their events.
type SessionService interface {
	// Get returns the session, or nil without error when it does not exist.
	Get(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	// Create creates a session. An empty sessionID gets a generated one.
	Create(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	// AppendEvent persists the event and appends it to sess.Events.
	AppendEvent(ctx context.Context, sess *Session, event *Event) error
	Close() error
}

type sessionKey struct {
	appName, userID, sessionID string
}

// InMemorySessionService keeps sessions in process memory.
type InMemorySessionService struct {
	mu       sync.RWMutex
	sessions map[sessionKey]*Session
}

// NewInMemorySessionService creates an empty in-memory session service.
func NewInMemorySessionService() *InMemorySessionService {
	return &InMemorySessionService{sessions: make(map[sessionKey]*Session)}
}

var _ SessionService = (*InMemorySessionService)(nil)

// Get returns a snapshot of the stored session.
func (s *InMemorySessionService) Get(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[sessionKey{appName, userID, sessionID}]
	if !ok {
		return nil, nil
	}
	return cloneSession(stored), nil
}

// Create stores a new session.
func (s *InMemorySessionService) Create(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{appName, userID, sessionID}
	if _, exists := s.sessions[key]; exists {
		return nil, fmt.Errorf("session %s already exists", sessionID)
	}
	sess := &Session{
		ID:             sessionID,
		AppName:        appName,
		UserID:         userID,
		LastUpdateTime: time.Now(),
	}
	s.sessions[key] = sess
	return cloneSession(sess), nil
}

// AppendEvent appends the event to both the stored session and sess.
func (s *InMemorySessionService) AppendEvent(ctx context.Context, sess *Session, event *Event) error {
	if event.Partial {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sessionKey{sess.AppName, sess.UserID, sess.ID}]
	if !ok {
		return fmt.Errorf("session %s not found", sess.ID)
	}
	stored.Events = append(stored.Events, event)
	stored.LastUpdateTime = event.Timestamp
	sess.Events = append(sess.Events, event)
	sess.LastUpdateTime = event.Timestamp
	return nil
}

// Close drops all sessions.
func (s *InMemorySessionService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[sessionKey]*Session)
	return nil
}

func cloneSession(sess *Session) *Session {
	out := *sess
	out.Events = append([]*Event(nil), sess.Events...)
	return &out
}
