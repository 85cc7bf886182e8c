package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/chatrelay/internal/agent"
)

const testApp = "chat-agent"

func newTestStore(t *testing.T) *SQLiteSessionService {
	t.Helper()
	s, err := NewSQLiteSessionService(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSessionCreateGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	got, err := s.Get(ctx, testApp, "u1", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	sess, err := s.Create(ctx, testApp, "u1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", sess.ID)

	got, err = s.Get(ctx, testApp, "u1", "abc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.Empty(t, got.Events)

	// Sessions are scoped by user.
	got, err = s.Get(ctx, testApp, "u2", "abc")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.Create(ctx, testApp, "u1", "abc")
	assert.Error(t, err, "duplicate session")
}

func TestSQLiteSessionGeneratesID(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Create(context.Background(), testApp, "u1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
}

func TestSQLiteSessionAppendEvents(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess, err := s.Create(ctx, testApp, "u1", "s1")
	require.NoError(t, err)

	now := time.Now()
	events := []*agent.Event{
		{ID: "e1", InvocationID: "i1", Author: agent.RoleUser, Content: agent.NewTextContent(agent.RoleUser, "hi"), Timestamp: now},
		{ID: "p1", InvocationID: "i1", Author: "chat_agent", Content: agent.NewTextContent(agent.RoleModel, "hel"), Partial: true, Timestamp: now},
		{ID: "e2", InvocationID: "i1", Author: "chat_agent", Content: agent.NewTextContent(agent.RoleModel, "hello"), TurnComplete: true, Timestamp: now},
		{ID: "e3", InvocationID: "i2", Author: "chat_agent", ErrorCode: agent.ErrorCodePolicyBlocked, ErrorMessage: "blocked", Timestamp: now},
	}
	for _, ev := range events {
		require.NoError(t, s.AppendEvent(ctx, sess, ev))
	}
	assert.Len(t, sess.Events, 3, "partial events are not stored")

	got, err := s.Get(ctx, testApp, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, got.Events, 3)

	assert.Equal(t, "e1", got.Events[0].ID)
	assert.Equal(t, agent.RoleUser, got.Events[0].Content.Role)
	assert.Equal(t, "hi", got.Events[0].Content.Text())

	assert.Equal(t, "e2", got.Events[1].ID)
	assert.True(t, got.Events[1].TurnComplete)
	assert.Equal(t, "hello", got.Events[1].Content.Text())

	assert.Equal(t, "e3", got.Events[2].ID)
	assert.Nil(t, got.Events[2].Content)
	assert.Equal(t, agent.ErrorCodePolicyBlocked, got.Events[2].ErrorCode)
	assert.Equal(t, "blocked", got.Events[2].ErrorMessage)
	assert.Equal(t, now.UnixMilli(), got.Events[2].Timestamp.UnixMilli())
}

func TestSQLiteSessionAppendUnknownSession(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendEvent(context.Background(), &agent.Session{ID: "nope", AppName: testApp, UserID: "u1"},
		&agent.Event{ID: "e1", InvocationID: "i1", Author: "user", Timestamp: time.Now()})
	assert.Error(t, err, "foreign key violation")
}

func TestSQLiteSessionServesRunner(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Create(ctx, testApp, "u1", "s1")
	require.NoError(t, err)

	r, err := agent.NewRunner(agent.RunnerConfig{AppName: testApp, SessionService: s, Model: echoModel{}})
	require.NoError(t, err)

	for _, err := range r.Run(ctx, "u1", "s1", agent.NewTextContent(agent.RoleUser, "ping"), agent.DefaultRunConfig()) {
		require.NoError(t, err)
	}

	got, err := s.Get(ctx, testApp, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, got.Events, 2)
	assert.Equal(t, "ping", got.Events[0].Content.Text())
	assert.Equal(t, "ping", got.Events[1].Content.Text())
}
