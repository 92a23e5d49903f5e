package synthesis

import (
	"context"
	"sync/atomic"
)

// mockLLMClient implements types.LLMClient for testing.
type mockLLMClient struct {
	completeFunc func(ctx context.Context, prompt string) (string, error)
	calls        atomic.Int32
}

func (m *mockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	m.calls.Add(1)
	if m.completeFunc != nil {
		return m.completeFunc(ctx, prompt)
	}
	return "", nil
}

func (m *mockLLMClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls.Add(1)
	if m.completeFunc != nil {
		return m.completeFunc(ctx, userPrompt)
	}
	return "", nil
}

func (m *mockLLMClient) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls.Add(1)
	if m.completeFunc != nil {
		return m.completeFunc(ctx, userPrompt)
	}
	return "", nil
}
