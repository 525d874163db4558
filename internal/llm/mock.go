package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for Client. It records every request it sees.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	mu       sync.Mutex
	requests []CompletionRequest
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: `{"command":"none","parameters":{},"text":"mock response"}`}, nil
}

// Calls returns how many completions were requested.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

// Replies returns a CompleteFunc that answers with each content in turn,
// repeating the last one once exhausted.
func Replies(contents ...string) func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		c := contents[i]
		if i < len(contents)-1 {
			i++
		}
		return &CompletionResponse{Content: c}, nil
	}
}
