// Package authoring holds the per-session state of turning one solver source
// into a descriptor: the buffer being worked on, the three role selections,
// and the result of the last transform. Sessions are explicit values; nothing
// here is global.
package authoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/pyregion"
	"github.com/c360studio/semsolver/selection"
	"github.com/c360studio/semsolver/transform"
)

// ErrNoTransform is returned by BuildTransformed before any transform has completed.
var ErrNoTransform = errors.New("no transform result in session")

// Session is one authoring session over a single source buffer.
// It is safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	path        string
	buffer      string
	name        string
	description string
	selections  selection.Set
	result      *transform.Result

	splitter *pyregion.Splitter
	logger   *slog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithName sets the descriptor name.
func WithName(name string) Option {
	return func(s *Session) {
		s.name = name
	}
}

// WithDescription sets the problem description sent with transforms and
// stored in the descriptor.
func WithDescription(description string) Option {
	return func(s *Session) {
		s.description = description
	}
}

// WithSplitter sets the region splitter used by BuildTransformed.
func WithSplitter(sp *pyregion.Splitter) Option {
	return func(s *Session) {
		s.splitter = sp
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession starts a session over buffer, read from path.
func NewSession(path, buffer string, opts ...Option) *Session {
	s := &Session{
		path:   path,
		buffer: buffer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the source path.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Buffer returns the current source text.
func (s *Session) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer
}

// SetName changes the descriptor name.
func (s *Session) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

// SetDescription changes the problem description.
func (s *Session) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description = description
}

// Mark captures r from the buffer and binds it to role, replacing any
// previous selection for that role.
func (s *Session) Mark(role selection.Role, r selection.Range) (selection.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sel, err := selection.Capture(s.buffer, r)
	if err != nil {
		return selection.Selection{}, fmt.Errorf("mark %s: %w", role, err)
	}
	if err := s.selections.Assign(role, sel); err != nil {
		return selection.Selection{}, err
	}
	s.logger.Debug("Selection marked", "role", role.String(), "range", r.String())
	return sel, nil
}

// MarkLines marks a 1-based inclusive line range.
func (s *Session) MarkLines(role selection.Role, from, to int) (selection.Selection, error) {
	r, err := selection.LineRange(s.Buffer(), from, to)
	if err != nil {
		return selection.Selection{}, fmt.Errorf("mark %s: %w", role, err)
	}
	return s.Mark(role, r)
}

// MarkSelection binds a selection produced elsewhere, e.g. by an editor that
// supplies the highlighted text itself.
func (s *Session) MarkSelection(role selection.Role, sel selection.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selections.Assign(role, sel)
}

// Selection returns the selection for role.
func (s *Session) Selection(role selection.Role) (selection.Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selections.Get(role)
}

// Missing returns the roles that have no selection yet.
func (s *Session) Missing() []selection.Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selections.Missing()
}

// Reset discards all selections and the last transform result.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections.Reset()
	s.result = nil
}

// Transform sends the buffer and description to b and consumes the answer.
// A completed result is kept for BuildTransformed; an abandoned one is
// returned but not kept.
func (s *Session) Transform(ctx context.Context, b backend.Backend, opts ...transform.ConsumeOption) (transform.Result, error) {
	s.mu.Lock()
	req := backend.Request{Code: s.buffer, Description: s.description}
	s.mu.Unlock()

	stream, err := b.Transform(ctx, req)
	if err != nil {
		return transform.Result{}, fmt.Errorf("open transform: %w", err)
	}

	result, err := transform.Consume(ctx, stream, opts...)
	if err != nil {
		return transform.Result{}, err
	}

	if !result.Abandoned {
		s.mu.Lock()
		s.result = &result
		s.mu.Unlock()
	}
	return result, nil
}

// Result returns the last completed transform result.
func (s *Session) Result() (transform.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return transform.Result{}, false
	}
	return *s.result, true
}

// BuildManual builds a descriptor from the three marked selections.
func (s *Session) BuildManual() (descriptor.SolverDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return descriptor.Build(s.name, s.description, descriptor.RegionsFromSelections(&s.selections))
}

// BuildTransformed builds a descriptor by splitting the transformed code into
// regions. Region offsets index the transformed code, not the buffer.
func (s *Session) BuildTransformed(ctx context.Context) (descriptor.SolverDescriptor, error) {
	s.mu.Lock()
	result, name, description := s.result, s.name, s.description
	splitter := s.splitter
	s.mu.Unlock()

	if result == nil {
		return descriptor.SolverDescriptor{}, ErrNoTransform
	}

	split := pyregion.Split
	if splitter != nil {
		split = splitter.Split
	}

	regions, err := split(ctx, result.Code)
	if err != nil && !errors.Is(err, pyregion.ErrNoCode) {
		return descriptor.SolverDescriptor{}, fmt.Errorf("split transformed code: %w", err)
	}
	return descriptor.Build(name, description, regions)
}

// Rebase switches the session to a new version of the source. Selections
// whose text still occurs in newBuffer are kept and re-pointed at the
// occurrence nearest their old offset; the others are dropped and returned.
// The transform result describes the old source and is discarded.
func (s *Session) Rebase(newBuffer string) []selection.Role {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dropped []selection.Role
	for _, role := range selection.Roles {
		sel, ok := s.selections.Get(role)
		if !ok {
			continue
		}
		idx := nearestIndex(newBuffer, sel.Text, sel.Start)
		if idx < 0 {
			s.selections.Clear(role)
			dropped = append(dropped, role)
			continue
		}
		moved, err := selection.New(idx, idx+len(sel.Text), sel.Text)
		if err != nil {
			s.selections.Clear(role)
			dropped = append(dropped, role)
			continue
		}
		_ = s.selections.Assign(role, moved)
	}

	s.buffer = newBuffer
	s.result = nil

	if len(dropped) > 0 {
		s.logger.Info("Selections dropped after source change", "path", s.path, "roles", dropped)
	}
	return dropped
}

// nearestIndex returns the start of the occurrence of text in buffer closest
// to hint, or -1.
func nearestIndex(buffer, text string, hint int) int {
	best := -1
	for from := 0; from <= len(buffer); {
		i := strings.Index(buffer[from:], text)
		if i < 0 {
			break
		}
		i += from
		if best < 0 || abs(i-hint) < abs(best-hint) {
			best = i
		}
		if i >= hint {
			break
		}
		from = i + 1
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
