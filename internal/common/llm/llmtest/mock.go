// Package llmtest provides chat client doubles for tests.
package llmtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"crm-assistant/internal/common/llm"
)

// MockChatClient is a testify mock implementing llm.ChatClient.
type MockChatClient struct {
	mock.Mock
}

func (m *MockChatClient) Chat(ctx context.Context, messages []llm.Message, opts llm.ChatOptions) (string, error) {
	args := m.Called(ctx, messages, opts)
	return args.String(0), args.Error(1)
}

// Temperature matches calls made with the given temperature.
func Temperature(t float64) interface{} {
	return mock.MatchedBy(func(opts llm.ChatOptions) bool { return opts.Temperature == t })
}

// UserMessage matches an exchange whose user message equals content.
func UserMessage(content string) interface{} {
	return mock.MatchedBy(func(msgs []llm.Message) bool {
		for _, m := range msgs {
			if m.Role == llm.RoleUser && m.Content == content {
				return true
			}
		}
		return false
	})
}
