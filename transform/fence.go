package transform

import "strings"

// FencePolicy decides what happens to code buffered inside a fence that is
// still open when the stream ends. It returns the code to publish and whether
// anything should be published at all.
type FencePolicy func(buffered string) (code string, ok bool)

// DiscardUnclosedFence drops code from an unterminated fence. This is the default.
func DiscardUnclosedFence(string) (string, bool) {
	return "", false
}

// FlushUnclosedFence publishes whatever was buffered, as if the fence had closed.
func FlushUnclosedFence(buffered string) (string, bool) {
	return buffered, true
}

// FenceTracker extracts the body of a ```python fence from code-section deltas.
// The zero value is ready to use.
type FenceTracker struct {
	inside bool
	buf    strings.Builder
}

// Observe feeds one delta. Outside the code section it does nothing.
// It returns the fence body when delta closes the fence.
//
// The open marker is checked first, so a delta carrying "```python" while a
// fence is already open restarts the buffer. A bare close marker with no open
// fence is ignored.
func (f *FenceTracker) Observe(delta string, active Section) (string, bool) {
	if active != SectionCode {
		return "", false
	}

	switch {
	case strings.Contains(delta, FenceOpen):
		f.inside = true
		f.buf.Reset()
		return "", false
	case strings.Contains(delta, FenceClose):
		if !f.inside {
			return "", false
		}
		f.inside = false
		code := f.buf.String()
		f.buf.Reset()
		return code, true
	case f.inside:
		f.buf.WriteString(delta)
	}
	return "", false
}

// Inside reports whether a fence is currently open.
func (f *FenceTracker) Inside() bool {
	return f.inside
}

// Buffered returns the text collected since the fence opened.
func (f *FenceTracker) Buffered() string {
	return f.buf.String()
}

// Finish closes out the tracker at end of stream, applying policy to an open fence.
// A nil policy means DiscardUnclosedFence.
func (f *FenceTracker) Finish(policy FencePolicy) (string, bool) {
	if !f.inside {
		return "", false
	}
	if policy == nil {
		policy = DiscardUnclosedFence
	}
	code, ok := policy(f.buf.String())
	f.inside = false
	f.buf.Reset()
	return code, ok
}
