package llm_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/c360studio/semsolver/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, input string) []string {
	t.Helper()
	r := llm.NewEventReader(strings.NewReader(input))
	var out []string
	for {
		data, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, string(data))
	}
}

func TestEventReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple events",
			input: "data: one\n\ndata: two\n\n",
			want:  []string{"one", "two"},
		},
		{
			name:  "multi-line data joined",
			input: "data: a\ndata: b\n\n",
			want:  []string{"a\nb"},
		},
		{
			name:  "comments and other fields skipped",
			input: ": keepalive\nevent: message\nid: 7\nretry: 100\ndata: x\n\n",
			want:  []string{"x"},
		},
		{
			name:  "crlf line endings",
			input: "data: one\r\n\r\ndata: two\r\n\r\n",
			want:  []string{"one", "two"},
		},
		{
			name:  "final event without trailing blank line",
			input: "data: one\n\ndata: last",
			want:  []string{"one", "last"},
		},
		{
			name:  "no space after colon",
			input: "data:tight\n\n",
			want:  []string{"tight"},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, tt.input))
		})
	}
}

func TestIsDoneMarker(t *testing.T) {
	assert.True(t, llm.IsDoneMarker([]byte("[DONE]")))
	assert.True(t, llm.IsDoneMarker([]byte(" [DONE] ")))
	assert.False(t, llm.IsDoneMarker([]byte(`{"choices":[]}`)))
}
