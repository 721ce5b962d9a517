// Package llm provides a provider-agnostic LLM client with retry and fallback support.
// It integrates with the model.Registry for capability-based model selection and
// can either return a whole completion or stream text deltas as they are generated.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semsolver/model"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic LLM client with retry and fallback support.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request.
type Request struct {
	// Capability specifies the semantic capability ("transform", "fast").
	// The registry resolves this to available models.
	Capability string

	// Messages is the chat history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses endpoint default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses endpoint default.
	MaxTokens int
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this LLM call for log correlation.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains detailed token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new LLM client with the given model registry.
// The default HTTP client has no overall timeout so long streams are not cut
// off; cancel the request context to bound a call.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 180 * time.Second, // Allow time for the first token
			},
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, handling retry and fallback logic.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.New().String()
	var resp *Response
	err := c.walkChain(ctx, requestID, req, func(ep *model.EndpointConfig) error {
		r, err := c.doRequest(ctx, ep, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.RequestID = requestID
	return resp, nil
}

// Stream opens a streaming completion. Retry and fallback cover connection
// establishment up to a 200 response; after that the stream belongs to the
// caller and failures surface from Stream.Recv.
func (c *Client) Stream(ctx context.Context, req Request) (*Stream, error) {
	var stream *Stream
	err := c.walkChain(ctx, uuid.New().String(), req, func(ep *model.EndpointConfig) error {
		s, err := c.openStream(ctx, ep, req)
		if err != nil {
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// walkChain tries each available endpoint for the request's capability until attempt succeeds.
func (c *Client) walkChain(ctx context.Context, requestID string, req Request, attempt func(*model.EndpointConfig) error) error {
	if req.Capability == "" {
		return fmt.Errorf("capability is required")
	}
	if len(req.Messages) == 0 {
		return fmt.Errorf("at least one message is required")
	}

	capVal := model.ParseCapability(req.Capability)
	if capVal == "" {
		capVal = model.CapabilityFast // Default to fast for unknown capabilities
	}
	chain := c.registry.GetAvailableFallbackChain(capVal)

	if len(chain) == 0 {
		return fmt.Errorf("no models configured for capability %s", req.Capability)
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", modelName)
			continue
		}

		if !c.registry.IsEndpointAvailable(modelName) {
			c.logger.Debug("Endpoint circuit open, skipping", "model", modelName)
			continue
		}

		err := c.tryEndpointWithRetry(ctx, modelName, func() error { return attempt(endpoint) })
		if err == nil {
			c.logger.Debug("LLM request established",
				"request_id", requestID,
				"capability", req.Capability,
				"model", modelName)
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("Endpoint failed, trying fallback",
			"request_id", requestID,
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)

		if IsFatal(err) {
			c.logger.Warn("Fatal error, not trying fallbacks", "error", err)
			return err
		}
	}

	if lastErr == nil {
		return fmt.Errorf("no available endpoints for capability %s", req.Capability)
	}
	return fmt.Errorf("all endpoints failed for capability %s: %w", req.Capability, lastErr)
}

// tryEndpointWithRetry runs attempt with exponential backoff, tracking endpoint health.
func (c *Client) tryEndpointWithRetry(ctx context.Context, modelName string, attempt func() error) error {
	maxAttempts := max(c.retryConfig.MaxAttempts, 1)
	var lastErr error

	for n := 1; n <= maxAttempts; n++ {
		err := attempt()
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return nil
		}
		lastErr = err

		// Fatal errors point at configuration, not endpoint health.
		if IsFatal(err) {
			return err
		}

		if n < maxAttempts {
			backoff := c.retryConfig.Backoff(n)
			c.logger.Debug("Request failed, retrying",
				"attempt", n,
				"max_attempts", maxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(modelName)
	return lastErr
}

// send builds and executes one HTTP request, returning the response on 200.
func (c *Client) send(ctx context.Context, ep *model.EndpointConfig, req Request, stream bool) (Provider, *http.Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens, stream)
	if err != nil {
		return nil, nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"stream", stream,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors are transient
		return nil, nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
		return nil, nil, ClassifyHTTPStatus(httpResp.StatusCode, respBody)
	}

	return provider, httpResp, nil
}

// doRequest executes a single non-streaming request.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider, httpResp, err := c.send(ctx, ep, req, false)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// openStream executes a single streaming request and wraps the body.
func (c *Client) openStream(ctx context.Context, ep *model.EndpointConfig, req Request) (*Stream, error) {
	provider, httpResp, err := c.send(ctx, ep, req, true)
	if err != nil {
		return nil, err
	}
	return NewStream(httpResp.Body, provider, ep.Model), nil
}
