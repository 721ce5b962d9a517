package transform

import (
	"io"
	"sync"
)

// DeltaStream is a source of text deltas. Recv returns io.EOF at natural
// end of stream; any other error is a transport failure.
type DeltaStream interface {
	Recv() (string, error)
	Close() error
}

// SliceStream replays a fixed sequence of deltas.
type SliceStream struct {
	mu     sync.Mutex
	deltas []string
	pos    int
	err    error
	closed bool
}

// NewSliceStream returns a stream that yields deltas in order, then io.EOF.
func NewSliceStream(deltas ...string) *SliceStream {
	return &SliceStream{deltas: deltas}
}

// FailAfter makes the stream return err once the deltas are exhausted
// instead of io.EOF.
func (s *SliceStream) FailAfter(err error) *SliceStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Recv implements DeltaStream.
func (s *SliceStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", io.ErrClosedPipe
	}
	if s.pos < len(s.deltas) {
		d := s.deltas[s.pos]
		s.pos++
		return d, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

// Close implements DeltaStream.
func (s *SliceStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
