// Package config provides configuration for the chat relay.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Model providers understood by the llm adapter factory.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Session store backends.
const (
	SessionStoreMemory = "memory"
	SessionStoreSQLite = "sqlite"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	HTTPPort          int      `env:"HTTP_PORT" envDefault:"8000"`
	CORSAllowOrigins  []string `env:"CORS_ALLOW_ORIGINS" envDefault:"*" envSeparator:","`
	ShutdownTimeoutMs int      `env:"SHUTDOWN_TIMEOUT_MS" envDefault:"10000"`
	HTTPBodyLimit     string   `env:"HTTP_BODY_LIMIT" envDefault:"1M"`

	// Agent runtime
	AppName     string `env:"APP_NAME" envDefault:"chat-agent"`
	AgentConfig string `env:"AGENT_CONFIG"`
	MaxLLMCalls int    `env:"MAX_LLM_CALLS" envDefault:"200"`
	PolicyFile  string `env:"POLICY_FILE"`

	// Model
	ModelProvider  string `env:"MODEL_PROVIDER" envDefault:"gemini"`
	ModelBaseURL   string `env:"MODEL_BASE_URL"`
	ModelAPIKey    string `env:"MODEL_API_KEY"`
	ModelMaxTokens int    `env:"MODEL_MAX_TOKENS" envDefault:"1024"`

	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`

	// Sessions
	SessionStore string `env:"SESSION_STORE" envDefault:"memory"`
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"file:chatrelay.db?cache=shared&mode=rwc"`

	// WebSocket settings
	WSMaxMessageSize int64 `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`
	WSWriteTimeoutMs int   `env:"WS_WRITE_TIMEOUT_MS" envDefault:"10000"`
	WSReadTimeoutMs  int   `env:"WS_READ_TIMEOUT_MS" envDefault:"60000"`
	WSPingIntervalMs int   `env:"WS_PING_INTERVAL_MS" envDefault:"30000"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from a .env file (when present) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	c.ModelProvider = strings.ToLower(strings.TrimSpace(c.ModelProvider))
	switch c.ModelProvider {
	case ProviderGemini, ProviderOpenAI, ProviderAnthropic, ProviderMock:
	default:
		return fmt.Errorf("unknown MODEL_PROVIDER %q", c.ModelProvider)
	}

	c.SessionStore = strings.ToLower(strings.TrimSpace(c.SessionStore))
	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreSQLite:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}

	if c.MaxLLMCalls <= 0 {
		return fmt.Errorf("MAX_LLM_CALLS must be positive, got %d", c.MaxLLMCalls)
	}
	return nil
}

// APIKey returns the key for the configured model provider. MODEL_API_KEY wins
// over the provider specific variables.
func (c *Config) APIKey() string {
	if c.ModelAPIKey != "" {
		return c.ModelAPIKey
	}
	switch c.ModelProvider {
	case ProviderGemini:
		return c.GoogleAPIKey
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	}
	return ""
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
}

// WSWriteTimeout returns the per-frame websocket write deadline.
func (c *Config) WSWriteTimeout() time.Duration {
	return time.Duration(c.WSWriteTimeoutMs) * time.Millisecond
}

// WSReadTimeout returns how long an idle websocket may go without a pong.
func (c *Config) WSReadTimeout() time.Duration {
	return time.Duration(c.WSReadTimeoutMs) * time.Millisecond
}

// WSPingInterval returns the websocket keepalive period.
func (c *Config) WSPingInterval() time.Duration {
	return time.Duration(c.WSPingIntervalMs) * time.Millisecond
}
