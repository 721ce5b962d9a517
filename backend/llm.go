package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semsolver/llm"
	"github.com/c360studio/semsolver/model"
	"github.com/c360studio/semsolver/transform"
)

// Completer is the subset of llm.Client the LLM backend needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
	Stream(ctx context.Context, req llm.Request) (*llm.Stream, error)
}

// LLM renders the transform prompt and streams the answer from a chat model.
type LLM struct {
	client      Completer
	capability  model.Capability
	temperature *float64
	maxTokens   int
	buffered    bool
	logger      *slog.Logger
}

// LLMOption configures an LLM backend.
type LLMOption func(*LLM)

// WithCapability overrides the capability used to pick a model.
func WithCapability(c model.Capability) LLMOption {
	return func(b *LLM) {
		b.capability = c
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LLMOption {
	return func(b *LLM) {
		b.temperature = &t
	}
}

// WithMaxTokens limits the response length.
func WithMaxTokens(n int) LLMOption {
	return func(b *LLM) {
		b.maxTokens = n
	}
}

// WithBuffered requests one non-streaming completion and replays it as a
// single delta. For endpoints that cannot stream.
func WithBuffered() LLMOption {
	return func(b *LLM) {
		b.buffered = true
	}
}

// WithLLMLogger sets the logger.
func WithLLMLogger(logger *slog.Logger) LLMOption {
	return func(b *LLM) {
		b.logger = logger
	}
}

// NewLLM creates a backend over client.
func NewLLM(client Completer, opts ...LLMOption) *LLM {
	b := &LLM{
		client:     client,
		capability: model.CapabilityTransform,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Transform implements Backend.
func (b *LLM) Transform(ctx context.Context, req Request) (transform.DeltaStream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	llmReq := llm.Request{
		Capability: b.capability.String(),
		Messages: []llm.Message{
			{Role: "system", Content: TransformSystemPrompt},
			{Role: "user", Content: TransformUserPrompt(req)},
		},
		Temperature: b.temperature,
		MaxTokens:   b.maxTokens,
	}

	if b.buffered {
		resp, err := b.client.Complete(ctx, llmReq)
		if err != nil {
			return nil, fmt.Errorf("transform completion: %w", err)
		}
		b.logger.Debug("Buffered transform completed",
			"request_id", resp.RequestID,
			"model", resp.Model,
			"tokens", resp.Usage.TotalTokens)
		return transform.NewSliceStream(resp.Content), nil
	}

	stream, err := b.client.Stream(ctx, llmReq)
	if err != nil {
		return nil, fmt.Errorf("open transform stream: %w", err)
	}
	b.logger.Debug("Transform stream opened", "model", stream.Model)
	return &loggedStream{Stream: stream, logger: b.logger}, nil
}

// loggedStream reports how the answer ended once the stream is closed.
type loggedStream struct {
	*llm.Stream
	logger *slog.Logger
}

func (s *loggedStream) Close() error {
	err := s.Stream.Close()
	s.logger.Debug("Transform stream closed",
		"model", s.Model,
		"finish_reason", s.FinishReason(),
		"tokens", s.Usage().TotalTokens)
	return err
}
