package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/llm"
)

func TestProvidersRegistered(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "ollama", "openai"}, llm.ListProviders())
	assert.NotNil(t, llm.GetProvider("openai"))
}

func TestOpenAIProvider_BuildURL(t *testing.T) {
	p := &OpenAIProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "https://api.openai.com/v1/chat/completions",
		},
		{
			name:    "custom base URL (OpenRouter)",
			baseURL: "https://openrouter.ai/api/v1",
			want:    "https://openrouter.ai/api/v1/chat/completions",
		},
		{
			name:    "trailing slash handled",
			baseURL: "https://api.openai.com/v1/",
			want:    "https://api.openai.com/v1/chat/completions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOpenAIProvider_SetHeaders(t *testing.T) {
	p := &OpenAIProvider{}

	t.Run("sets authorization and OpenRouter headers", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "test-api-key")
		t.Setenv("OPENROUTER_SITE_URL", "https://solvers.example.com")
		t.Setenv("OPENROUTER_SITE_NAME", "semsolver")

		req, _ := http.NewRequest(http.MethodPost, "https://openrouter.ai/api/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Equal(t, "Bearer test-api-key", req.Header.Get("Authorization"))
		assert.Equal(t, "https://solvers.example.com", req.Header.Get("HTTP-Referer"))
		assert.Equal(t, "semsolver", req.Header.Get("X-Title"))
	})

	t.Run("no headers when env vars empty", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("OPENROUTER_SITE_URL", "")
		t.Setenv("OPENROUTER_SITE_NAME", "")

		req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Empty(t, req.Header.Get("Authorization"))
		assert.Empty(t, req.Header.Get("HTTP-Referer"))
	})
}

func TestOpenAIProvider_SharesStreamParsing(t *testing.T) {
	p := &OpenAIProvider{}

	ev, err := p.ParseStreamEvent([]byte(`{"choices":[{"delta":{"content":"x"}}]}`))
	assert.NoError(t, err)
	assert.Equal(t, "x", ev.Delta)
}

func TestOpenAIProvider_BuildRequestBody(t *testing.T) {
	p := &OpenAIProvider{}
	messages := []llm.Message{{Role: "user", Content: "Here is my solver."}}

	t.Run("streamed request asks for usage", func(t *testing.T) {
		body, err := p.BuildRequestBody("gpt-4o", messages, nil, 2048, true)
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "gpt-4o", got["model"])
		assert.Equal(t, true, got["stream"])
		assert.Equal(t, float64(2048), got["max_tokens"])
		assert.Equal(t, map[string]any{"include_usage": true}, got["stream_options"])
		assert.NotContains(t, got, "temperature")
	})

	t.Run("buffered request has no stream options", func(t *testing.T) {
		temp := 0.2
		body, err := p.BuildRequestBody("gpt-4o", messages, &temp, 0, false)
		require.NoError(t, err)

		assert.NotContains(t, string(body), "stream_options")
		assert.NotContains(t, string(body), `"stream"`)
		assert.Contains(t, string(body), `"temperature":0.2`)
	})

	t.Run("ollama request is unchanged", func(t *testing.T) {
		body, err := (&OllamaProvider{}).BuildRequestBody("llama3", messages, nil, 0, true)
		require.NoError(t, err)
		assert.NotContains(t, string(body), "stream_options")
	})
}

func TestOpenAIProvider_ParseStreamEvent(t *testing.T) {
	p := &OpenAIProvider{}

	tests := []struct {
		name    string
		data    string
		want    llm.StreamEvent
		wantErr string
	}{
		{
			name: "content delta",
			data: `{"choices":[{"delta":{"content":"x"},"finish_reason":null}],"usage":null}`,
			want: llm.StreamEvent{Delta: "x"},
		},
		{
			name: "finish reason",
			data: `{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			want: llm.StreamEvent{FinishReason: "stop"},
		},
		{
			name: "usage-only final chunk",
			data: `{"choices":[],"usage":{"prompt_tokens":120,"completion_tokens":80,"total_tokens":200}}`,
			want: llm.StreamEvent{Usage: &llm.TokenUsage{PromptTokens: 120, CompletionTokens: 80, TotalTokens: 200}},
		},
		{
			name:    "error event",
			data:    `{"error":{"message":"rate limited"}}`,
			wantErr: "rate limited",
		},
		{
			name:    "malformed",
			data:    `{"choices":`,
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

func TestOpenAIProvider_StreamReportsUsage(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"# Analysis\n"}}],"usage":null}`,
		`data: {"choices":[{"delta":{"content":"Greedy."},"finish_reason":"stop"}],"usage":null}`,
		`data: {"choices":[],"usage":{"prompt_tokens":40,"completion_tokens":12,"total_tokens":52}}`,
		`data: [DONE]`,
	}, "\n\n") + "\n\n"

	stream := llm.NewStream(io.NopCloser(strings.NewReader(body)), &OpenAIProvider{}, "gpt-4o")
	defer stream.Close()

	var got []string
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, delta)
	}

	assert.Equal(t, []string{"# Analysis\n", "Greedy."}, got)
	assert.Equal(t, llm.TokenUsage{PromptTokens: 40, CompletionTokens: 12, TotalTokens: 52}, stream.Usage())
	assert.Equal(t, "stop", stream.FinishReason())
}

func TestOllamaProvider_IgnoresUsageChunk(t *testing.T) {
	ev, err := (&OllamaProvider{}).ParseStreamEvent([]byte(`{"choices":[],"usage":{"total_tokens":9}}`))
	require.NoError(t, err)
	assert.Nil(t, ev.Usage)
	assert.Empty(t, ev.Delta)
}
