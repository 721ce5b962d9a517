// Package backend opens transform streams against the service that restructures
// solver code. Two backends are provided: HTTP posts the code to a dedicated
// transform endpoint that answers with server-sent events, and LLM builds the
// chat prompt locally and streams through the llm client.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/semsolver/transform"
)

// ErrEmptyCode is returned when a transform is requested for blank source.
var ErrEmptyCode = errors.New("transform request has no code")

// Request is the payload sent to a transform backend.
type Request struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Validate checks the request before anything is sent.
func (r Request) Validate() error {
	if r.Code == "" {
		return ErrEmptyCode
	}
	return nil
}

// Backend opens a delta stream for one transform request. The caller owns
// the returned stream and must Close it; transform.Consume does so.
type Backend interface {
	Transform(ctx context.Context, req Request) (transform.DeltaStream, error)
}

// Func adapts a function to the Backend interface.
type Func func(ctx context.Context, req Request) (transform.DeltaStream, error)

// Transform implements Backend.
func (f Func) Transform(ctx context.Context, req Request) (transform.DeltaStream, error) {
	return f(ctx, req)
}

// Static returns a backend that replays the same deltas for every request.
// Used by tests and the offline demo path.
func Static(deltas ...string) Backend {
	return Func(func(_ context.Context, req Request) (transform.DeltaStream, error) {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return transform.NewSliceStream(deltas...), nil
	})
}

// Kind names a backend implementation in configuration.
type Kind string

const (
	KindLLM  Kind = "llm"
	KindHTTP Kind = "http"
)

// ParseKind validates a configured backend kind. Empty means KindLLM.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindLLM:
		return KindLLM, nil
	case KindHTTP:
		return KindHTTP, nil
	default:
		return "", fmt.Errorf("unknown backend kind %q", s)
	}
}
