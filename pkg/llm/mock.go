package llm

import (
	"context"
	"sync"
)

// MockLLMClient is a configurable LLMClient for tests of the translator and
// everything above it.
type MockLLMClient struct {
	// GenerateResponseFunc is called when GenerateResponse is invoked.
	// If nil, Response is returned.
	GenerateResponseFunc func(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error)

	// Response is the canned reply content used when GenerateResponseFunc is nil.
	Response string

	Model    string
	Endpoint string

	mu         sync.Mutex
	calls      int
	lastPrompt string
	lastSystem string
}

// NewMockLLMClient returns a mock that always answers with response.
func NewMockLLMClient(response string) *MockLLMClient {
	return &MockLLMClient{Response: response}
}

// GenerateResponse implements LLMClient.
func (m *MockLLMClient) GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64) (*GenerateResponseResult, error) {
	m.mu.Lock()
	m.calls++
	m.lastPrompt = prompt
	m.lastSystem = systemMessage
	fn := m.GenerateResponseFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, systemMessage, temperature)
	}
	return &GenerateResponseResult{Content: m.Response}, nil
}

// Calls returns how many times GenerateResponse ran.
func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent user and system prompts.
func (m *MockLLMClient) LastPrompt() (prompt, system string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt, m.lastSystem
}

// GetModel implements LLMClient.
func (m *MockLLMClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements LLMClient.
func (m *MockLLMClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}
