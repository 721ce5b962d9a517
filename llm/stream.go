package llm

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Stream delivers the text deltas of a streaming completion.
// It satisfies the delta source expected by the transform package.
type Stream struct {
	body     io.ReadCloser
	events   *EventReader
	provider Provider

	// Model is the endpoint model that is answering.
	Model string

	finishReason string
	usage        TokenUsage
	done         bool
	closeOnce    sync.Once
}

// NewStream reads server-sent events from body, decoding each with provider.
func NewStream(body io.ReadCloser, provider Provider, model string) *Stream {
	return &Stream{
		body:     body,
		events:   NewEventReader(body),
		provider: provider,
		Model:    model,
	}
}

// Recv returns the next non-empty delta, or io.EOF at end of stream.
// A body that ends without the provider's terminal event still counts as a
// natural end; a read error does not.
func (s *Stream) Recv() (string, error) {
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
			return "", fmt.Errorf("read stream: %w", err)
		}

		if IsDoneMarker(data) {
			s.done = true
			return "", io.EOF
		}

		ev, err := s.provider.ParseStreamEvent(data)
		if err != nil {
			return "", fmt.Errorf("parse stream event: %w", err)
		}
		if ev.FinishReason != "" {
			s.finishReason = ev.FinishReason
		}
		if ev.Usage != nil {
			s.usage = *ev.Usage
		}
		if ev.Done {
			s.done = true
		}
		if ev.Delta != "" {
			return ev.Delta, nil
		}
	}
}

// FinishReason returns why generation stopped, once known.
func (s *Stream) FinishReason() string {
	return s.finishReason
}

// Usage returns the token counts reported by the provider. It is zero until
// the provider's usage event has been read, and stays zero for providers
// that never send one.
func (s *Stream) Usage() TokenUsage {
	return s.usage
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}
