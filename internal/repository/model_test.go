package repository

import (
	"context"

	"github.com/xiaot623/chatrelay/internal/adapter/llm"
)

// echoModel replies with the last message it was sent.
type echoModel struct{}

func (echoModel) CreateChatCompletionStream(ctx context.Context, req *llm.ChatCompletionRequest, callback llm.StreamCallback) (*llm.Usage, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.Usage{}, callback(&llm.StreamChunk{Text: last.Content, FinishReason: "stop"})
}

func (echoModel) Close() error { return nil }
