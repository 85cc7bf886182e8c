package service

import (
	"strings"

	"github.com/xiaot623/chatrelay/internal/domain"
)

// ExtractUserText returns the trimmed text of the latest user message, falling
// back to the top-level input and message fields. It fails with
// domain.ErrNoUserMessage when the result is empty.
func ExtractUserText(req *domain.ChatRequest) (string, error) {
	text := latestUserText(req.Messages)
	if text == "" {
		text = req.Input
	}
	if text == "" {
		text = req.Message
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrNoUserMessage
	}
	return text, nil
}

func latestUserText(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if text := messageText(messages[i]); text != "" {
			return text
		}
	}
	return ""
}

// messageText tries each message variant in order. A string content is final
// even when empty.
func messageText(m domain.Message) string {
	if text, ok := contentStringText(m); ok {
		return text
	}
	if text, ok := contentPartsText(m); ok {
		return text
	}
	if text, ok := typedPartsText(m); ok {
		return text
	}
	return ""
}

func contentStringText(m domain.Message) (string, bool) {
	if m.ContentText == nil {
		return "", false
	}
	return *m.ContentText, true
}

func contentPartsText(m domain.Message) (string, bool) {
	if len(m.ContentParts) == 0 {
		return "", false
	}
	texts := make([]string, 0, len(m.ContentParts))
	for _, p := range m.ContentParts {
		texts = append(texts, p.Text)
	}
	return strings.Join(texts, "\n"), true
}

func typedPartsText(m domain.Message) (string, bool) {
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, "\n"), true
}
