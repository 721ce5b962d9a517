// Package testutil provides test utilities for the llm package.
// It includes a mock client that answers Complete and Stream calls from
// canned responses without any network.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/c360studio/semsolver/llm"
	_ "github.com/c360studio/semsolver/llm/providers" // Register providers
)

// MockLLMClient is a thread-safe mock LLM client for testing.
// It captures the last request and returns configured responses.
//
// Usage:
//
//	// Streamed deltas
//	mock := &MockLLMClient{
//	    Deltas: []string{"# Analysis\n", "O(n)."},
//	}
//
//	// Error response
//	mock := &MockLLMClient{
//	    Err: errors.New("connection failed"),
//	}
type MockLLMClient struct {
	mu              sync.Mutex
	capturedContext context.Context
	capturedRequest llm.Request
	Responses       []*llm.Response // Responses to return from Complete in sequence
	Deltas          []string        // Deltas every Stream call delivers
	Usage           *llm.TokenUsage // Usage-only chunk sent after the deltas, if set
	Err             error           // Error to return (takes precedence over everything else)
	callCount       int
	responseIndex   int
}

func (m *MockLLMClient) record(ctx context.Context, req llm.Request) {
	m.capturedContext = ctx
	m.capturedRequest = req
	m.callCount++
}

// Complete returns the next response from Responses, or Err if set.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(ctx, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	return &llm.Response{Content: strings.Join(m.Deltas, ""), Model: "test-model"}, nil
}

// Stream returns an llm.Stream that replays Deltas as OpenAI-style
// server-sent events.
func (m *MockLLMClient) Stream(ctx context.Context, req llm.Request) (*llm.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record(ctx, req)

	if m.Err != nil {
		return nil, m.Err
	}

	body, err := SSEBodyWithUsage(m.Usage, m.Deltas...)
	if err != nil {
		return nil, err
	}
	return llm.NewStream(io.NopCloser(strings.NewReader(body)), llm.GetProvider("openai"), "test-model"), nil
}

// SSEBody renders deltas as an OpenAI chat.completion.chunk event stream
// terminated by [DONE].
func SSEBody(deltas ...string) (string, error) {
	return SSEBodyWithUsage(nil, deltas...)
}

// SSEBodyWithUsage is SSEBody with a trailing usage-only chunk, as sent by
// OpenAI when stream_options.include_usage is set. A nil usage omits it.
func SSEBodyWithUsage(usage *llm.TokenUsage, deltas ...string) (string, error) {
	var b strings.Builder
	for _, d := range deltas {
		chunk := map[string]any{
			"choices": []map[string]any{{"delta": map[string]string{"content": d}}},
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return "", fmt.Errorf("marshal chunk: %w", err)
		}
		fmt.Fprintf(&b, "data: %s\n\n", data)
	}
	if usage != nil {
		data, err := json.Marshal(map[string]any{"choices": []any{}, "usage": usage})
		if err != nil {
			return "", fmt.Errorf("marshal usage: %w", err)
		}
		fmt.Fprintf(&b, "data: %s\n\n", data)
	}
	b.WriteString("data: [DONE]\n\n")
	return b.String(), nil
}

// GetCapturedContext returns the last context passed to the mock.
func (m *MockLLMClient) GetCapturedContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedContext
}

// GetCapturedRequest returns the last request passed to the mock.
func (m *MockLLMClient) GetCapturedRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedRequest
}

// GetCallCount returns the number of Complete and Stream calls.
func (m *MockLLMClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset resets the mock's state (call count and response index).
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.responseIndex = 0
	m.capturedContext = nil
	m.capturedRequest = llm.Request{}
}
