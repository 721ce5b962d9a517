package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/llm"
	_ "github.com/c360studio/semsolver/llm/providers"
	"github.com/c360studio/semsolver/model"
	"github.com/c360studio/semsolver/transform"
)

const answer = "# Analysis\nThe solver mixes parameters with logic.\n" +
	"# Transformed Code\n```python\nN = 12\n\ndef cost(x):\n    return sum(x)\n\ndef solve():\n    return cost([1] * N)\n```\n" +
	"# Verification Steps\nRun solve() and compare with the original.\n"

func TestLoadFixtures_BaseOnly(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-transform.md", answer)
	writeFixture(t, dir, "mock-fast.txt", "# Analysis\nshort")
	writeFixture(t, dir, "notes.json", `{"ignored":true}`)

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	if len(fixtures) != 2 {
		t.Fatalf("expected 2 models, got %d", len(fixtures))
	}
	for model, seq := range fixtures {
		if len(seq) != 1 {
			t.Errorf("model %q: expected 1 fixture, got %d", model, len(seq))
		}
	}
}

func TestLoadFixtures_Sequential(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "mock-transform.2.md", "second")
	writeFixture(t, dir, "mock-transform.1.md", "first")
	writeFixture(t, dir, "mock-transform.md", "fallback")

	fixtures, err := loadFixtures(dir)
	if err != nil {
		t.Fatalf("loadFixtures: %v", err)
	}
	seq := fixtures["mock-transform"]
	want := []string{"first", "second", "fallback"}
	if len(seq) != len(want) {
		t.Fatalf("expected %d fixtures, got %d", len(want), len(seq))
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Errorf("fixture[%d] = %q, want %q", i, seq[i], want[i])
		}
	}
}

func TestLoadFixtures_Errors(t *testing.T) {
	if _, err := loadFixtures(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}

	dir := t.TempDir()
	writeFixture(t, dir, "bad.md", string([]byte{0xff, 0xfe}))
	if _, err := loadFixtures(dir); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestNumberedFileRegex(t *testing.T) {
	tests := []struct {
		name  string
		model string
		match bool
	}{
		{"mock-transform.1.md", "mock-transform", true},
		{"transform.12.txt", "transform", true},
		{"mock-transform.md", "", false},
		{"mock-transform.1.json", "", false},
	}
	for _, tt := range tests {
		m := numberedFileRe.FindStringSubmatch(tt.name)
		if (m != nil) != tt.match {
			t.Errorf("%s: match = %v, want %v", tt.name, m != nil, tt.match)
			continue
		}
		if m != nil && m[1] != tt.model {
			t.Errorf("%s: model = %q, want %q", tt.name, m[1], tt.model)
		}
	}
}

func TestSplitDeltas(t *testing.T) {
	text := "# Analysis\nπ ≈ 3.14"
	deltas := splitDeltas(text, 4)
	if got := strings.Join(deltas, ""); got != text {
		t.Fatalf("deltas do not reassemble: %q", got)
	}
	for _, d := range deltas {
		if len(d) > 4 {
			t.Errorf("delta %q exceeds chunk size", d)
		}
		if !utf8.ValidString(d) {
			t.Errorf("delta %q splits a rune", d)
		}
	}

	if got := splitDeltas("", 4); got != nil {
		t.Errorf("empty text should yield no deltas, got %v", got)
	}
	if got := splitDeltas("abc", 0); len(got) != 1 || got[0] != "abc" {
		t.Errorf("non-positive size should yield one delta, got %v", got)
	}
}

func TestSequentialFixtureSelection(t *testing.T) {
	s := newServer(map[string][]string{"mock-transform": {"first", "second", "fallback"}}, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	want := []string{"first", "second", "fallback", "fallback"}
	for i, w := range want {
		resp := postJSON(t, srv.URL+"/v1/chat/completions", chatRequest{Model: "mock-transform"})
		var body chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if got := body.Choices[0].Message.Content; got != w {
			t.Errorf("call %d: got %q, want %q", i+1, got, w)
		}
	}
}

func TestStripMockPrefix(t *testing.T) {
	s := newServer(map[string][]string{"transform": {answer}}, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/v1/chat/completions", chatRequest{Model: "mock-transform"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	missing := postJSON(t, srv.URL+"/v1/chat/completions", chatRequest{Model: "unknown"})
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown model, got %d", missing.StatusCode)
	}
}

// TestChatStream_ThroughClient drives the streaming endpoint with the real
// model client and the transform consumer.
func TestChatStream_ThroughClient(t *testing.T) {
	s := newServer(map[string][]string{"mock-transform": {answer}}, nil)
	s.chunkSize = 5
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	b := backend.NewLLM(llm.NewClient(testRegistry(srv.URL)))
	stream, err := b.Transform(context.Background(), backend.Request{Code: "x = 1\n", Description: "toy"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	result, err := transform.Consume(context.Background(), stream)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !result.CodeFinalized {
		t.Error("expected the code fence to close")
	}
	if !strings.Contains(result.Code, "def cost(x):") {
		t.Errorf("unexpected code: %q", result.Code)
	}
	if !strings.Contains(result.Verification, "compare with the original") {
		t.Errorf("unexpected verification: %q", result.Verification)
	}

	reqs := capturedFor(t, srv.URL, "mock-transform")
	if len(reqs) != 1 || !reqs[0].Stream {
		t.Fatalf("expected one captured streaming request, got %+v", reqs)
	}
	var sawCode bool
	for _, m := range reqs[0].Messages {
		if strings.Contains(m.Content, "x = 1") {
			sawCode = true
		}
	}
	if !sawCode {
		t.Error("prompt should carry the solver code")
	}
}

func TestTransformEndpoint_ThroughHTTPBackend(t *testing.T) {
	s := newServer(map[string][]string{"transform": {answer}}, nil)
	s.chunkSize = 3
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	b := backend.NewHTTP(srv.URL + "/transform")
	stream, err := b.Transform(context.Background(), backend.Request{Code: "x = 1\n"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	result, err := transform.Consume(context.Background(), stream)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !strings.Contains(result.Analysis, "mixes parameters") {
		t.Errorf("unexpected analysis: %q", result.Analysis)
	}
	if !result.CodeFinalized {
		t.Error("expected the code fence to close")
	}
}

func TestTransformEndpoint_RejectsEmptyCode(t *testing.T) {
	s := newServer(map[string][]string{"transform": {answer}}, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/transform", transformRequest{Code: "  "})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestFailAfter_AbortsStream(t *testing.T) {
	s := newServer(map[string][]string{"transform": {answer}}, nil)
	s.chunkSize = 8
	s.failAfter = 3
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	stream, err := backend.NewHTTP(srv.URL+"/transform").Transform(context.Background(), backend.Request{Code: "x = 1\n"})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	_, err = transform.Consume(context.Background(), stream)
	if !errors.Is(err, transform.ErrStreamTransport) {
		t.Fatalf("expected a stream transport error, got %v", err)
	}
}

func TestStatsEndpoint(t *testing.T) {
	s := newServer(map[string][]string{"mock-transform": {answer}}, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	for range 2 {
		resp := postJSON(t, srv.URL+"/v1/chat/completions", chatRequest{Model: "mock-transform"})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var stats struct {
		TotalCalls   int64            `json:"total_calls"`
		CallsByModel map[string]int64 `json:"calls_by_model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalCalls != 2 {
		t.Errorf("expected 2 calls, got %d", stats.TotalCalls)
	}
	if stats.CallsByModel["mock-transform"] != 2 {
		t.Errorf("expected 2 calls for mock-transform, got %d", stats.CallsByModel["mock-transform"])
	}
}

func TestRequestsEndpoint_CallFilter(t *testing.T) {
	s := newServer(map[string][]string{"mock-transform": {"a", "b"}}, nil)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	for _, content := range []string{"first prompt", "second prompt"} {
		resp := postJSON(t, srv.URL+"/v1/chat/completions", chatRequest{
			Model:    "mock-transform",
			Messages: []chatMessage{{Role: "user", Content: content}},
		})
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/requests?model=mock-transform&call=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		RequestsByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	reqs := body.RequestsByModel["mock-transform"]
	if len(reqs) != 1 || reqs[0].Messages[0].Content != "second prompt" {
		t.Errorf("unexpected filtered requests: %+v", reqs)
	}
}

func testRegistry(baseURL string) *model.Registry {
	return model.NewRegistry(
		map[model.Capability]*model.CapabilityConfig{
			model.CapabilityTransform: {Preferred: []string{"mock"}},
		},
		map[string]*model.EndpointConfig{
			"mock": {Provider: "ollama", URL: baseURL + "/v1", Model: "mock-transform"},
		},
	)
}

func capturedFor(t *testing.T, baseURL, model string) []capturedRequest {
	t.Helper()
	resp, err := http.Get(baseURL + "/requests?model=" + model)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		RequestsByModel map[string][]capturedRequest `json:"requests_by_model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	return body.RequestsByModel[model]
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}
