package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicMaxTokens is used when the request does not set MaxTokens;
// the Messages API requires a value.
const defaultAnthropicMaxTokens = 1024

// AnthropicClient streams completions from the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// Ensure AnthropicClient implements LLMClient interface.
var _ LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient creates a client. An empty baseURL keeps the SDK default.
func NewAnthropicClient(apiKey, baseURL string) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{client: &client}
}

// CreateChatCompletionStream sends a streaming message request.
func (c *AnthropicClient) CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest, callback StreamCallback) (*Usage, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  convertAnthropicMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	accum := anthropic.Message{}
	for stream.Next() {
		evt := stream.Current()
		_ = accum.Accumulate(evt)

		switch variant := evt.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := callback(&StreamChunk{Text: delta.Text}); err != nil {
					return nil, err
				}
			}
		case anthropic.MessageStopEvent:
			if err := callback(&StreamChunk{FinishReason: string(accum.StopReason)}); err != nil {
				return nil, err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic stream failed: %w", err)
	}

	input := int(accum.Usage.InputTokens)
	output := int(accum.Usage.OutputTokens)
	return &Usage{
		PromptTokens:     input,
		CompletionTokens: output,
		TotalTokens:      input + output,
	}, nil
}

// Close is a no-op; the SDK client holds no resources of its own.
func (c *AnthropicClient) Close() error {
	return nil
}

func convertAnthropicMessages(msgs []ChatMessage) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			continue
		}
		result = append(result, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}
	return result
}
