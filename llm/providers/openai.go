package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/semsolver/llm"
)

// OpenAIProvider talks to the OpenAI API directly or through OpenRouter.
// It shares the chat completions format with OllamaProvider and additionally
// asks streamed answers to end with a usage report.
type OpenAIProvider struct {
	OllamaProvider
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

// Name returns the provider identifier.
func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL constructs the OpenAI API endpoint.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}

	return baseURL + "/chat/completions"
}

// SetHeaders adds the bearer token and the optional OpenRouter attribution headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	if siteURL := os.Getenv("OPENROUTER_SITE_URL"); siteURL != "" {
		req.Header.Set("HTTP-Referer", siteURL)
	}
	if siteName := os.Getenv("OPENROUTER_SITE_NAME"); siteName != "" {
		req.Header.Set("X-Title", siteName)
	}
}

type openAIStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// openAIChatRequest adds stream_options to the shared request format.
type openAIChatRequest struct {
	openAIRequest
	StreamOptions *openAIStreamOptions `json:"stream_options,omitempty"`
}

// BuildRequestBody creates the request body. Streamed requests set
// stream_options.include_usage so the stream ends with a usage-only chunk.
func (o *OpenAIProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int, stream bool) ([]byte, error) {
	req := openAIChatRequest{openAIRequest: newOpenAIRequest(model, messages, temperature, maxTokens, stream)}
	if stream {
		req.StreamOptions = &openAIStreamOptions{IncludeUsage: true}
	}
	return json.Marshal(req)
}

// openAIUsageChunk picks the usage report out of a chat.completion.chunk.
type openAIUsageChunk struct {
	Usage *openAIUsage `json:"usage"`
}

// ParseStreamEvent extracts the delta from a chat.completion.chunk. The final
// chunk of a stream requested with include_usage has no choices and carries
// the token counts for the whole answer.
func (o *OpenAIProvider) ParseStreamEvent(data []byte) (llm.StreamEvent, error) {
	ev, err := o.OllamaProvider.ParseStreamEvent(data)
	if err != nil {
		return ev, err
	}

	var chunk openAIUsageChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return llm.StreamEvent{}, fmt.Errorf("parse openai usage: %w", err)
	}
	if chunk.Usage != nil {
		usage := chunk.Usage.tokenUsage()
		ev.Usage = &usage
	}
	return ev, nil
}
