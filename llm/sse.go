package llm

import (
	"bufio"
	"bytes"
	"io"
)

// maxEventSize bounds a single server-sent event line.
const maxEventSize = 1024 * 1024

// EventReader reads the data payloads of a server-sent event stream.
// Only "data:" fields are returned; comments, event names, ids, and retry
// fields are skipped. Multi-line data fields are joined with "\n".
type EventReader struct {
	scanner *bufio.Scanner
}

// NewEventReader wraps r.
func NewEventReader(r io.Reader) *EventReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	return &EventReader{scanner: s}
}

// Next returns the data of the next event. It returns io.EOF when the
// underlying reader ends cleanly, flushing a final event with no trailing
// blank line first.
func (r *EventReader) Next() ([]byte, error) {
	var data []byte
	have := false

	for r.scanner.Scan() {
		line := bytes.TrimSuffix(r.scanner.Bytes(), []byte("\r"))

		if len(line) == 0 {
			if have {
				return data, nil
			}
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if have {
			data = append(data, '\n')
		}
		data = append(data, value...)
		have = true
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if have {
		return data, nil
	}
	return nil, io.EOF
}

// IsDoneMarker reports whether data is the OpenAI-style "[DONE]" sentinel.
func IsDoneMarker(data []byte) bool {
	return string(bytes.TrimSpace(data)) == "[DONE]"
}
