package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/llm"
)

func TestOllamaProvider_BuildURL(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "custom base URL",
			baseURL: "http://myserver:8080/v1",
			want:    "http://myserver:8080/v1/chat/completions",
		},
		{
			name:    "trailing slash handled",
			baseURL: "http://localhost:11434/v1/",
			want:    "http://localhost:11434/v1/chat/completions",
		},
		{
			name:    "already has endpoint",
			baseURL: "http://localhost:11434/v1/chat/completions",
			want:    "http://localhost:11434/v1/chat/completions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOllamaProvider_BuildRequestBody(t *testing.T) {
	p := &OllamaProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "Restructure optimization code."},
		{Role: "user", Content: "def f(x): return x"},
	}

	temp := 0.2
	body, err := p.BuildRequestBody("qwen2.5-coder:14b", messages, &temp, 2048, true)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"model":"qwen2.5-coder:14b"`)
	assert.Contains(t, string(body), `"role":"system"`)
	assert.Contains(t, string(body), `"temperature":0.2`)
	assert.Contains(t, string(body), `"max_tokens":2048`)
	assert.Contains(t, string(body), `"stream":true`)
}

func TestOllamaProvider_BuildRequestBody_NoOptionalParams(t *testing.T) {
	p := &OllamaProvider{}

	body, err := p.BuildRequestBody("test-model", []llm.Message{{Role: "user", Content: "Hello"}}, nil, 0, false)
	require.NoError(t, err)

	assert.NotContains(t, string(body), `"temperature"`)
	assert.NotContains(t, string(body), `"max_tokens"`)
	assert.NotContains(t, string(body), `"stream"`)
}

func TestOllamaProvider_ParseResponse(t *testing.T) {
	p := &OllamaProvider{}

	responseBody := []byte(`{
		"id": "chatcmpl-123",
		"object": "chat.completion",
		"model": "qwen2.5-coder:14b",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "# Analysis"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 6, "total_tokens": 16}
	}`)

	resp, err := p.ParseResponse(responseBody, "test-model")
	require.NoError(t, err)

	assert.Equal(t, "# Analysis", resp.Content)
	assert.Equal(t, "qwen2.5-coder:14b", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 16, resp.Usage.TotalTokens)
}

func TestOllamaProvider_ParseResponse_NoChoices(t *testing.T) {
	p := &OllamaProvider{}

	_, err := p.ParseResponse([]byte(`{"id": "chatcmpl-123", "choices": []}`), "test-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOllamaProvider_ParseStreamEvent(t *testing.T) {
	p := &OllamaProvider{}

	tests := []struct {
		name    string
		data    string
		want    llm.StreamEvent
		wantErr string
	}{
		{
			name: "content delta",
			data: `{"choices":[{"index":0,"delta":{"content":"def f"},"finish_reason":null}]}`,
			want: llm.StreamEvent{Delta: "def f"},
		},
		{
			name: "role only",
			data: `{"choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			want: llm.StreamEvent{},
		},
		{
			name: "finish",
			data: `{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			want: llm.StreamEvent{FinishReason: "stop"},
		},
		{
			name: "usage trailer",
			data: `{"choices":[],"usage":{"total_tokens":9}}`,
			want: llm.StreamEvent{},
		},
		{
			name:    "error payload",
			data:    `{"error":{"message":"model not loaded"}}`,
			wantErr: "model not loaded",
		},
		{
			name:    "not json",
			data:    `nope`,
			wantErr: "parse openai chunk",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseStreamEvent([]byte(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
