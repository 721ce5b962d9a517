// Package selection captures user-highlighted regions of a source buffer.
// A Selection's Text is authoritative; Start and End are advisory metadata
// kept for display and are never used to re-slice the buffer.
package selection

import (
	"errors"
	"fmt"
	"strings"
)

// Common selection errors.
var (
	// ErrEmptySelection is returned when the captured text is empty after trimming.
	ErrEmptySelection = errors.New("empty selection")

	// ErrInvalidRange is returned when offsets fall outside the buffer.
	ErrInvalidRange = errors.New("invalid selection range")
)

// Selection is an immutable region of a source buffer.
type Selection struct {
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
	Text  string `json:"text" yaml:"text"`
}

// Range is a capture request expressed as byte offsets into a buffer.
// Any input modality (pointer drag, keyboard, CLI line range) reduces to a Range.
type Range struct {
	Start int
	End   int
}

// String renders the range as "start:end".
func (r Range) String() string {
	return fmt.Sprintf("%d:%d", r.Start, r.End)
}

// Capture returns the Selection covering buffer[r.Start:r.End].
// The text is returned exactly as highlighted, untrimmed.
func Capture(buffer string, r Range) (Selection, error) {
	if r.Start < 0 || r.End < r.Start || r.End > len(buffer) {
		return Selection{}, fmt.Errorf("%w: %s outside buffer of %d bytes", ErrInvalidRange, r, len(buffer))
	}

	text := buffer[r.Start:r.End]
	if strings.TrimSpace(text) == "" {
		return Selection{}, ErrEmptySelection
	}

	return Selection{Start: r.Start, End: r.End, Text: text}, nil
}

// New builds a Selection from text the caller already extracted.
// End is not required to exceed Start; only the text is checked.
func New(start, end int, text string) (Selection, error) {
	if start < 0 {
		return Selection{}, fmt.Errorf("%w: negative start %d", ErrInvalidRange, start)
	}
	if strings.TrimSpace(text) == "" {
		return Selection{}, ErrEmptySelection
	}
	return Selection{Start: start, End: end, Text: text}, nil
}

// IsZero reports whether s is the zero Selection.
func (s Selection) IsZero() bool {
	return s == Selection{}
}

// LineRange converts a 1-based inclusive line range into a byte Range over buffer.
// The range ends after the newline of toLine when one exists.
func LineRange(buffer string, fromLine, toLine int) (Range, error) {
	if fromLine < 1 || toLine < fromLine {
		return Range{}, fmt.Errorf("%w: lines %d-%d", ErrInvalidRange, fromLine, toLine)
	}

	start, end := -1, -1
	line := 1
	if fromLine == 1 {
		start = 0
	}
	for i := 0; i < len(buffer); i++ {
		if buffer[i] != '\n' {
			continue
		}
		if line == toLine {
			end = i + 1
			break
		}
		line++
		if line == fromLine {
			start = i + 1
		}
	}

	if start < 0 {
		return Range{}, fmt.Errorf("%w: line %d beyond end of buffer", ErrInvalidRange, fromLine)
	}
	if end < 0 {
		// toLine is the last (unterminated) line.
		if line < toLine {
			return Range{}, fmt.Errorf("%w: line %d beyond end of buffer", ErrInvalidRange, toLine)
		}
		end = len(buffer)
	}
	return Range{Start: start, End: end}, nil
}

// ParseLineSpec parses "from:to" or a single "line" into line numbers.
func ParseLineSpec(spec string) (from, to int, err error) {
	before, after, found := strings.Cut(spec, ":")
	if _, err := fmt.Sscanf(before, "%d", &from); err != nil {
		return 0, 0, fmt.Errorf("%w: bad line spec %q", ErrInvalidRange, spec)
	}
	if !found {
		return from, from, nil
	}
	if _, err := fmt.Sscanf(after, "%d", &to); err != nil {
		return 0, 0, fmt.Errorf("%w: bad line spec %q", ErrInvalidRange, spec)
	}
	return from, to, nil
}
