// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package capability

import (
	"context"
	"fmt"
	"strings"
)

// MockChatModel returns a deterministic, content-derived answer without
// calling any provider. Used by tests and by deployments with no
// configured chat provider.
type MockChatModel struct{}

// NewMockChatModel creates a mock chat model.
func NewMockChatModel() *MockChatModel { return &MockChatModel{} }

func (m *MockChatModel) Name() string { return "mock-chat" }

func (m *MockChatModel) Complete(ctx context.Context, messages []Message, params Params) (CompletionResult, error) {
	text := mockAnswer(messages)
	return CompletionResult{Text: text, Model: m.Name(), OutputTokens: len(strings.Fields(text))}, nil
}

func (m *MockChatModel) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, error) {
	text := mockAnswer(messages)
	out := make(chan Token, len(strings.Fields(text))+1)
	go func() {
		defer close(out)
		for _, word := range strings.Fields(text) {
			select {
			case out <- Token{Text: word + " "}:
			case <-ctx.Done():
				return
			}
		}
		out <- Token{Done: true}
	}()
	return out, nil
}

// mockAnswer echoes back the last user message framed as an answer, so
// fixture-driven tests can assert on substrings of the retrieved context
// without a live provider.
func mockAnswer(messages []Message) string {
	var lastUser string
	for _, msg := range messages {
		if msg.Role == RoleUser {
			lastUser = msg.Content
		}
	}
	return fmt.Sprintf("Based on the provided context: %s", strings.TrimSpace(lastUser))
}
