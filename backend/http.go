package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c360studio/semsolver/llm"
	"github.com/c360studio/semsolver/transform"
)

// maxErrorBody bounds how much of a failed response is read for the error message.
const maxErrorBody = 64 * 1024

// HTTP posts {code, description} to a transform endpoint and reads the
// server-sent event response as deltas.
type HTTP struct {
	url        string
	httpClient *http.Client
	headers    http.Header
	logger     *slog.Logger
}

// HTTPOption configures an HTTP backend.
type HTTPOption func(*HTTP)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) {
		h.httpClient = c
	}
}

// WithHeader adds a header to every request, e.g. an Authorization token.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTP) {
		h.headers.Add(key, value)
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// NewHTTP creates a backend for the transform endpoint at url.
func NewHTTP(url string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		url: url,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 180 * time.Second,
			},
		},
		headers: make(http.Header),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Transform implements Backend. A non-200 answer is returned as an
// llm.TransientError or llm.FatalError; once the stream is open, failures
// surface from Recv.
func (h *HTTP) Transform(ctx context.Context, req Request) (transform.DeltaStream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal transform request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create transform request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, vs := range h.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	h.logger.Debug("Opening transform stream", "url", h.url, "code_bytes", len(req.Code))

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("transform request failed: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, llm.ClassifyHTTPStatus(resp.StatusCode, respBody)
	}

	return &eventStream{body: resp.Body, events: llm.NewEventReader(resp.Body)}, nil
}

// eventStream adapts an SSE body to transform.DeltaStream.
type eventStream struct {
	body      io.ReadCloser
	events    *llm.EventReader
	done      bool
	closeOnce sync.Once
}

// eventPayload covers the payload shapes accepted from a transform endpoint:
// an OpenAI chat.completion.chunk, or a flat {"content": ...} / {"delta": ...}.
type eventPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Content *string `json:"content"`
	Delta   *string `json:"delta"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (s *eventStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}

		data, err := s.events.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.done = true
				return "", io.EOF
			}
			return "", fmt.Errorf("read transform stream: %w", err)
		}
		if llm.IsDoneMarker(data) {
			s.done = true
			return "", io.EOF
		}

		delta, err := decodeDelta(data)
		if err != nil {
			return "", err
		}
		if delta != "" {
			return delta, nil
		}
	}
}

func (s *eventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

// decodeDelta extracts the text of one event. Data that is not a JSON object
// is taken verbatim as the delta.
func decodeDelta(data []byte) (string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return string(data), nil
	}

	var p eventPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return string(data), nil
	}
	switch {
	case p.Error != nil:
		return "", fmt.Errorf("transform stream error: %s", p.Error.Message)
	case len(p.Choices) > 0:
		return p.Choices[0].Delta.Content, nil
	case p.Content != nil:
		return *p.Content, nil
	case p.Delta != nil:
		return *p.Delta, nil
	}
	return "", nil
}
