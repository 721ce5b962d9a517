package transform

import (
	"errors"
	"fmt"
)

// ErrStreamTransport marks a failure of the delta source before natural end of stream.
var ErrStreamTransport = errors.New("stream transport error")

// StreamError reports a transport failure during consumption.
// Partial section content is discarded when it occurs.
type StreamError struct {
	// Deltas is how many deltas were received before the failure.
	Deltas int
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream transport error after %d deltas: %v", e.Deltas, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Is matches ErrStreamTransport.
func (e *StreamError) Is(target error) bool {
	return target == ErrStreamTransport
}

// IsStreamError returns true if err is a transport failure.
func IsStreamError(err error) bool {
	return errors.Is(err, ErrStreamTransport)
}
