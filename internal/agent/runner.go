package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/chatrelay/internal/adapter/llm"
)

// TurnPolicy decides whether a turn may run. policy.Engine implements it.
type TurnPolicy interface {
	Evaluate(ctx context.Context, input interface{}) (decision string, reason string, err error)
}

const decisionBlock = "block"

// errStopped aborts the model stream once the consumer stops iterating.
var errStopped = errors.New("consumer stopped")

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	AppName        string
	Agent          *Definition
	SessionService SessionService
	Model          llm.LLMClient
	// Policy is optional.
	Policy    TurnPolicy
	MaxTokens int
}

// Runner executes agent turns against a session service and a model.
type Runner struct {
	appName   string
	agent     *Definition
	sessions  SessionService
	model     llm.LLMClient
	policy    TurnPolicy
	maxTokens int

	closeOnce sync.Once
	closeErr  error
}

// NewRunner creates a runner.
func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.AppName == "" {
		return nil, fmt.Errorf("app name is required")
	}
	if cfg.SessionService == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("model client is required")
	}
	def := cfg.Agent
	if def == nil {
		def = DefaultDefinition()
	}
	return &Runner{
		appName:   cfg.AppName,
		agent:     def,
		sessions:  cfg.SessionService,
		model:     cfg.Model,
		policy:    cfg.Policy,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// AppName returns the application name sessions are keyed under.
func (r *Runner) AppName() string {
	return r.appName
}

// SessionService returns the runner's session service.
func (r *Runner) SessionService() SessionService {
	return r.sessions
}

// Run executes one turn for newMessage in the given session. The returned
// sequence is lazy: nothing happens until it is ranged over, and breaking out
// of the loop cancels the model stream.
//
// Failures the agent reports (policy blocks, call limits) are yielded as
// events with ErrorMessage set. Infrastructure failures (missing session,
// model transport errors) are yielded as errors and end the sequence.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, newMessage *Content, cfg RunConfig) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		invocationID := "e-" + uuid.New().String()
		llmCalls := 0

		sess, err := r.sessions.Get(ctx, r.appName, userID, sessionID)
		if err != nil {
			yield(nil, fmt.Errorf("failed to load session: %w", err))
			return
		}
		if sess == nil {
			yield(nil, fmt.Errorf("session %s not found", sessionID))
			return
		}

		text := newMessage.Text()

		if r.policy != nil {
			decision, reason, err := r.policy.Evaluate(ctx, map[string]interface{}{
				"app_name":   r.appName,
				"user_id":    userID,
				"session_id": sessionID,
				"message":    text,
			})
			if err != nil {
				yield(nil, err)
				return
			}
			if decision == decisionBlock {
				if reason == "" {
					reason = "message blocked by policy"
				}
				yield(r.errorEvent(invocationID, ErrorCodePolicyBlocked, reason), nil)
				return
			}
		}

		userEvent := &Event{
			ID:           uuid.New().String(),
			InvocationID: invocationID,
			Author:       RoleUser,
			Content:      newMessage,
			Timestamp:    time.Now(),
		}
		if err := r.sessions.AppendEvent(ctx, sess, userEvent); err != nil {
			yield(nil, fmt.Errorf("failed to append user event: %w", err))
			return
		}

		history := historyMessages(sess.Events)
		var reply strings.Builder
		for {
			llmCalls++
			if cfg.MaxLLMCalls > 0 && llmCalls > cfg.MaxLLMCalls {
				r.saveReply(ctx, sess, invocationID, reply.String())
				yield(r.errorEvent(invocationID, ErrorCodeMaxLLMCallsExceeded,
					fmt.Sprintf("max number of llm calls limit of %d exceeded", cfg.MaxLLMCalls)), nil)
				return
			}

			messages := history
			if reply.Len() > 0 {
				// Continue a truncated reply from where it stopped.
				messages = append(append([]llm.ChatMessage(nil), history...),
					llm.ChatMessage{Role: llm.RoleAssistant, Content: reply.String()})
			}
			req := &llm.ChatCompletionRequest{
				Model:     r.agent.Model,
				System:    r.agent.Instruction,
				Messages:  messages,
				MaxTokens: r.maxTokens,
			}

			var finishReason string
			received := false
			stopped := false
			usage, err := r.model.CreateChatCompletionStream(ctx, req, func(chunk *llm.StreamChunk) error {
				if chunk.FinishReason != "" {
					finishReason = chunk.FinishReason
				}
				if chunk.Text == "" {
					return nil
				}
				received = true
				reply.WriteString(chunk.Text)
				if cfg.StreamingMode != StreamingModeSSE {
					return nil
				}
				partial := &Event{
					ID:           uuid.New().String(),
					InvocationID: invocationID,
					Author:       r.agent.Name,
					Content:      NewTextContent(RoleModel, chunk.Text),
					Partial:      true,
					Timestamp:    time.Now(),
				}
				if !yield(partial, nil) {
					stopped = true
					return errStopped
				}
				return nil
			})
			if stopped {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("model call failed: %w", err))
				return
			}
			if usage != nil {
				slog.Debug("model call done", "invocation_id", invocationID, "llm_calls", llmCalls, "total_tokens", usage.TotalTokens)
			}
			if !received || !truncated(finishReason) {
				break
			}
		}

		final := &Event{
			ID:           uuid.New().String(),
			InvocationID: invocationID,
			Author:       r.agent.Name,
			TurnComplete: true,
			Timestamp:    time.Now(),
		}
		if reply.Len() > 0 {
			final.Content = NewTextContent(RoleModel, reply.String())
			r.appendModelEvent(ctx, sess, final)
		}

		if cfg.StreamingMode == StreamingModeSSE {
			// The text already went out as partial events.
			marker := *final
			marker.Content = nil
			yield(&marker, nil)
			return
		}
		yield(final, nil)
	}
}

// Close releases the session service and model client. Safe to call more
// than once.
func (r *Runner) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = errors.Join(r.sessions.Close(), r.model.Close())
	})
	return r.closeErr
}

// saveReply stores a partial reply cut off by the call limit.
func (r *Runner) saveReply(ctx context.Context, sess *Session, invocationID, text string) {
	if text == "" {
		return
	}
	r.appendModelEvent(ctx, sess, &Event{
		ID:           uuid.New().String(),
		InvocationID: invocationID,
		Author:       r.agent.Name,
		Content:      NewTextContent(RoleModel, text),
		Timestamp:    time.Now(),
	})
}

func (r *Runner) appendModelEvent(ctx context.Context, sess *Session, ev *Event) {
	if err := r.sessions.AppendEvent(ctx, sess, ev); err != nil {
		slog.Error("failed to append model event", "session_id", sess.ID, "error", err)
	}
}

// truncated reports whether a model stopped at its token limit
// (OpenAI "length", Anthropic "max_tokens").
func truncated(finishReason string) bool {
	return finishReason == "length" || finishReason == "max_tokens"
}

func (r *Runner) errorEvent(invocationID, code, message string) *Event {
	return &Event{
		ID:           uuid.New().String(),
		InvocationID: invocationID,
		Author:       r.agent.Name,
		ErrorCode:    code,
		ErrorMessage: message,
		Timestamp:    time.Now(),
	}
}

// historyMessages converts stored session events into model chat history.
func historyMessages(events []*Event) []llm.ChatMessage {
	var messages []llm.ChatMessage
	for _, ev := range events {
		if ev.Partial || ev.ErrorMessage != "" || ev.Content == nil {
			continue
		}
		text := ev.Content.Text()
		if text == "" {
			continue
		}
		role := llm.RoleAssistant
		if ev.Content.Role == RoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: text})
	}
	return messages
}
