package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/xiaot623/chatrelay/internal/adapter/llm"
	"github.com/xiaot623/chatrelay/internal/agent"
	"github.com/xiaot623/chatrelay/internal/config"
	"github.com/xiaot623/chatrelay/internal/logging"
	"github.com/xiaot623/chatrelay/internal/policy"
	"github.com/xiaot623/chatrelay/internal/repository"
	"github.com/xiaot623/chatrelay/internal/service"
	server "github.com/xiaot623/chatrelay/internal/transport/http"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(os.Stdout, cfg.LogLevel)

	slog.Info("starting chat relay",
		"port", cfg.HTTPPort,
		"app_name", cfg.AppName,
		"model_provider", cfg.ModelProvider,
		"session_store", cfg.SessionStore,
	)

	ctx := context.Background()
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize agent runner", "error", err)
		os.Exit(1)
	}

	runConfig := agent.DefaultRunConfig()
	runConfig.MaxLLMCalls = cfg.MaxLLMCalls
	svc := service.New(runner, runConfig)

	e := server.NewServer(cfg, svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down chat relay")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	if err := runner.Close(); err != nil {
		slog.Error("runner close failed", "error", err)
	}

	slog.Info("chat relay stopped")
}

// newRunner builds the agent runtime from configuration.
func newRunner(ctx context.Context, cfg *config.Config) (*agent.Runner, error) {
	def := agent.DefaultDefinition()
	if cfg.AgentConfig != "" {
		loaded, err := agent.LoadDefinition(cfg.AgentConfig)
		if err != nil {
			return nil, err
		}
		def = loaded
	}

	var sessions agent.SessionService
	switch cfg.SessionStore {
	case config.SessionStoreSQLite:
		store, err := repository.NewSQLiteSessionService(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		sessions = store
	default:
		sessions = agent.NewInMemorySessionService()
	}

	model, err := llm.NewLLMClient(cfg)
	if err != nil {
		sessions.Close()
		return nil, err
	}

	engine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		sessions.Close()
		model.Close()
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	return agent.NewRunner(agent.RunnerConfig{
		AppName:        cfg.AppName,
		Agent:          def,
		SessionService: sessions,
		Model:          model,
		Policy:         engine,
		MaxTokens:      cfg.ModelMaxTokens,
	})
}
