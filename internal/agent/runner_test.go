package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/chatrelay/internal/adapter/llm"
	"github.com/xiaot623/chatrelay/internal/policy"
)

const testApp = "chat-agent"

// scriptedModel replays chunks and records the last request.
type scriptedModel struct {
	chunks []string
	finish string
	err    error
	last   *llm.ChatCompletionRequest
	calls  int
	closed bool
}

func (m *scriptedModel) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) (*llm.Usage, error) {
	m.last = req
	m.calls++
	for _, c := range m.chunks {
		if err := callback(&llm.StreamChunk{Text: c}); err != nil {
			return nil, err
		}
	}
	if m.finish != "" {
		if err := callback(&llm.StreamChunk{FinishReason: m.finish}); err != nil {
			return nil, err
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Usage{TotalTokens: 1}, nil
}

func (m *scriptedModel) Close() error {
	m.closed = true
	return nil
}

type staticPolicy struct {
	decision, reason string
}

func (p staticPolicy) Evaluate(ctx context.Context, input interface{}) (string, string, error) {
	return p.decision, p.reason, nil
}

func newTestRunner(t *testing.T, model llm.LLMClient, pol TurnPolicy) (*Runner, *InMemorySessionService) {
	t.Helper()
	sessions := NewInMemorySessionService()
	r, err := NewRunner(RunnerConfig{
		AppName:        testApp,
		SessionService: sessions,
		Model:          model,
		Policy:         pol,
		MaxTokens:      256,
	})
	require.NoError(t, err)
	return r, sessions
}

func collect(t *testing.T, r *Runner, sessionID, text string, cfg RunConfig) ([]*Event, []error) {
	t.Helper()
	var events []*Event
	var errs []error
	for ev, err := range r.Run(context.Background(), "u1", sessionID, NewTextContent(RoleUser, text), cfg) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(RunnerConfig{SessionService: NewInMemorySessionService(), Model: llm.NewMockClient()})
	assert.Error(t, err)
	_, err = NewRunner(RunnerConfig{AppName: testApp, Model: llm.NewMockClient()})
	assert.Error(t, err)
	_, err = NewRunner(RunnerConfig{AppName: testApp, SessionService: NewInMemorySessionService()})
	assert.Error(t, err)
}

func TestRunStreamsPartialEvents(t *testing.T) {
	model := &scriptedModel{chunks: []string{"Hel", "lo"}}
	r, sessions := newTestRunner(t, model, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hi", DefaultRunConfig())
	require.Empty(t, errs)
	require.Len(t, events, 3)

	assert.True(t, events[0].Partial)
	assert.Equal(t, "Hel", events[0].Content.Text())
	assert.True(t, events[1].Partial)
	assert.Equal(t, "lo", events[1].Content.Text())
	assert.True(t, events[2].TurnComplete)
	assert.Nil(t, events[2].Content)

	// Request carries the instruction and the new user message.
	require.NotNil(t, model.last)
	assert.Equal(t, DefaultDefinition().Model, model.last.Model)
	assert.Equal(t, DefaultDefinition().Instruction, model.last.System)
	assert.Equal(t, 256, model.last.MaxTokens)
	assert.Equal(t, []llm.ChatMessage{{Role: llm.RoleUser, Content: "hi"}}, model.last.Messages)

	sess, err := sessions.Get(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "hi", sess.Events[0].Content.Text())
	assert.Equal(t, "Hello", sess.Events[1].Content.Text())
}

func TestRunNonStreamingYieldsFinalContent(t *testing.T) {
	r, sessions := newTestRunner(t, &scriptedModel{chunks: []string{"a", "b"}}, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hi", RunConfig{StreamingMode: StreamingModeNone})
	require.Empty(t, errs)
	require.Len(t, events, 1)
	assert.True(t, events[0].TurnComplete)
	assert.Equal(t, "ab", events[0].Content.Text())
}

func TestRunSendsHistory(t *testing.T) {
	model := &scriptedModel{chunks: []string{"ok"}}
	r, sessions := newTestRunner(t, model, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	_, errs := collect(t, r, "s1", "first", DefaultRunConfig())
	require.Empty(t, errs)
	_, errs = collect(t, r, "s1", "second", DefaultRunConfig())
	require.Empty(t, errs)

	assert.Equal(t, []llm.ChatMessage{
		{Role: llm.RoleUser, Content: "first"},
		{Role: llm.RoleAssistant, Content: "ok"},
		{Role: llm.RoleUser, Content: "second"},
	}, model.last.Messages)
}

func TestRunMissingSession(t *testing.T) {
	r, _ := newTestRunner(t, &scriptedModel{}, nil)

	events, errs := collect(t, r, "nope", "hi", DefaultRunConfig())
	assert.Empty(t, events)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "not found")
}

func TestRunModelFailure(t *testing.T) {
	r, sessions := newTestRunner(t, &scriptedModel{chunks: []string{"par"}, err: errors.New("upstream 503")}, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hi", DefaultRunConfig())
	require.Len(t, events, 1)
	assert.True(t, events[0].Partial)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "model call failed: upstream 503")
}

func TestRunPolicyBlock(t *testing.T) {
	model := &scriptedModel{chunks: []string{"never"}}
	r, sessions := newTestRunner(t, model, staticPolicy{decision: "block", reason: "no thanks"})
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hi", DefaultRunConfig())
	require.Empty(t, errs)
	require.Len(t, events, 1)
	assert.Equal(t, ErrorCodePolicyBlocked, events[0].ErrorCode)
	assert.Equal(t, "no thanks", events[0].ErrorMessage)
	assert.Nil(t, model.last, "model must not be called")
}

func TestRunDefaultPolicyBlocksOversizedMessage(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	r, sessions := newTestRunner(t, &scriptedModel{chunks: []string{"ok"}}, engine)
	_, err = sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", strings.Repeat("x", 32001), DefaultRunConfig())
	require.Empty(t, errs)
	require.Len(t, events, 1)
	assert.Equal(t, ErrorCodePolicyBlocked, events[0].ErrorCode)

	events, errs = collect(t, r, "s1", "short", DefaultRunConfig())
	require.Empty(t, errs)
	assert.True(t, events[len(events)-1].TurnComplete)
}

func TestRunStopsModelWhenConsumerBreaks(t *testing.T) {
	model := &scriptedModel{chunks: []string{"a", "b", "c"}}
	r, sessions := newTestRunner(t, model, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	seen := 0
	for ev, err := range r.Run(context.Background(), "u1", "s1", NewTextContent(RoleUser, "hi"), DefaultRunConfig()) {
		require.NoError(t, err)
		require.True(t, ev.Partial)
		seen++
		break
	}
	assert.Equal(t, 1, seen)

	sess, err := sessions.Get(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)
	assert.Len(t, sess.Events, 1, "only the user event is stored")
}

func TestRunWithMockClient(t *testing.T) {
	r, sessions := newTestRunner(t, llm.NewMockClient(), nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hello", DefaultRunConfig())
	require.Empty(t, errs)
	require.Greater(t, len(events), 1)

	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.Content.Text())
	}
	assert.Equal(t, `[MOCK] Received your message: "hello". This is a mock response.`, b.String())
}

func TestRunnerCloseOnce(t *testing.T) {
	model := &scriptedModel{}
	r, _ := newTestRunner(t, model, nil)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, model.closed)
}

// truncatingModel stops at the token limit until its replies run out.
type truncatingModel struct {
	replies  []string
	requests []*llm.ChatCompletionRequest
}

func (m *truncatingModel) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) (*llm.Usage, error) {
	n := len(m.requests)
	m.requests = append(m.requests, req)
	finish := "length"
	if n == len(m.replies)-1 {
		finish = "stop"
	}
	if err := callback(&llm.StreamChunk{Text: m.replies[n], FinishReason: finish}); err != nil {
		return nil, err
	}
	return &llm.Usage{TotalTokens: 1}, nil
}

func (m *truncatingModel) Close() error { return nil }

func TestRunMaxLLMCallsAllowsSingleCall(t *testing.T) {
	model := &scriptedModel{chunks: []string{"ok"}, finish: "stop"}
	r, sessions := newTestRunner(t, model, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hi", RunConfig{StreamingMode: StreamingModeSSE, MaxLLMCalls: 1})
	require.Empty(t, errs)
	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Content.Text())
	assert.True(t, events[1].TurnComplete)
	assert.Empty(t, events[1].ErrorCode)
	assert.Equal(t, 1, model.calls)
}

func TestRunMaxLLMCallsExceeded(t *testing.T) {
	model := &scriptedModel{chunks: []string{"more"}, finish: "length"}
	r, sessions := newTestRunner(t, model, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hi", RunConfig{StreamingMode: StreamingModeSSE, MaxLLMCalls: 1})
	require.Empty(t, errs)
	require.Len(t, events, 2)
	assert.Equal(t, "more", events[0].Content.Text())
	assert.Equal(t, ErrorCodeMaxLLMCallsExceeded, events[1].ErrorCode)
	assert.Contains(t, events[1].ErrorMessage, "limit of 1")
	assert.Equal(t, 1, model.calls)

	// The truncated reply is kept in history.
	sess, err := sessions.Get(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "more", sess.Events[1].Content.Text())
}

func TestRunContinuesTruncatedReply(t *testing.T) {
	model := &truncatingModel{replies: []string{"Hel", "lo"}}
	r, sessions := newTestRunner(t, model, nil)
	_, err := sessions.Create(context.Background(), testApp, "u1", "s1")
	require.NoError(t, err)

	events, errs := collect(t, r, "s1", "hi", RunConfig{StreamingMode: StreamingModeNone, MaxLLMCalls: 3})
	require.Empty(t, errs)
	require.Len(t, events, 1)
	assert.True(t, events[0].TurnComplete)
	assert.Equal(t, "Hello", events[0].Content.Text())

	require.Len(t, model.requests, 2)
	assert.Len(t, model.requests[0].Messages, 1)
	second := model.requests[1].Messages
	require.Len(t, second, 2)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	assert.Equal(t, "Hel", second[1].Content)
}
