package llm

import (
	"fmt"
	"log/slog"

	"github.com/xiaot623/chatrelay/internal/config"
)

// NewLLMClient creates an LLM client for cfg.ModelProvider.
// MODEL_PROVIDER=mock returns a MockClient and needs no API key.
func NewLLMClient(cfg *config.Config) (LLMClient, error) {
	if cfg.ModelProvider == config.ProviderMock {
		slog.Info("MODEL_PROVIDER=mock detected, using mock LLM client")
		return NewMockClient(), nil
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for model provider %q", cfg.ModelProvider)
	}

	switch cfg.ModelProvider {
	case config.ProviderGemini:
		baseURL := cfg.ModelBaseURL
		if baseURL == "" {
			baseURL = GeminiOpenAIBaseURL
		}
		return NewOpenAIClient(apiKey, baseURL), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(apiKey, cfg.ModelBaseURL), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(apiKey, cfg.ModelBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.ModelProvider)
	}
}
