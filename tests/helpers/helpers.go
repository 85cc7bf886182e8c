// Package helpers wires real components for package tests.
package helpers

import (
	"testing"

	"github.com/xiaot623/chatrelay/internal/adapter/llm"
	"github.com/xiaot623/chatrelay/internal/agent"
	"github.com/xiaot623/chatrelay/internal/config"
	"github.com/xiaot623/chatrelay/internal/repository"
	"github.com/xiaot623/chatrelay/internal/service"
)

// TestAppName is the app name test runners key sessions under.
const TestAppName = "chat-agent"

func NewTestSQLiteSessionService(t *testing.T) *repository.SQLiteSessionService {
	t.Helper()

	s, err := repository.NewSQLiteSessionService(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite session service: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// NewTestRunner builds a runner over sessions and model with no turn policy.
func NewTestRunner(t *testing.T, sessions agent.SessionService, model llm.LLMClient) *agent.Runner {
	t.Helper()

	r, err := agent.NewRunner(agent.RunnerConfig{
		AppName:        TestAppName,
		SessionService: sessions,
		Model:          model,
	})
	if err != nil {
		t.Fatalf("failed to create runner: %v", err)
	}

	t.Cleanup(func() {
		_ = r.Close()
	})

	return r
}

// NewTestService returns a service backed by in-memory sessions and the mock
// model, plus the session service so tests can seed it.
func NewTestService(t *testing.T) (*service.Service, agent.SessionService) {
	t.Helper()

	sessions := agent.NewInMemorySessionService()
	runner := NewTestRunner(t, sessions, llm.NewMockClient())
	return service.New(runner, agent.DefaultRunConfig()), sessions
}

// NewTestConfig returns a validated mock-mode configuration.
func NewTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		HTTPPort:          0,
		CORSAllowOrigins:  []string{"*"},
		ShutdownTimeoutMs: 1000,
		HTTPBodyLimit:     "64K",
		AppName:           TestAppName,
		MaxLLMCalls:       200,
		ModelProvider:     config.ProviderMock,
		ModelMaxTokens:    1024,
		SessionStore:      config.SessionStoreMemory,
		WSMaxMessageSize:  65536,
		WSWriteTimeoutMs:  1000,
		WSReadTimeoutMs:   5000,
		WSPingIntervalMs:  0,
		LogLevel:          "error",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}
