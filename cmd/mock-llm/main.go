// Package main implements a mock transform model for end-to-end testing.
//
// It serves two surfaces from answer fixtures:
//   - /v1/chat/completions, OpenAI-compatible, buffered or streamed (stream: true)
//   - /transform, the streaming transform-service protocol used by the http backend
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434 -chunk 12
//
// Fixture files hold a raw model answer (markdown with the "# Analysis",
// "# Transformed Code" and "# Verification Steps" sections) and are named by
// model: "mock-transform.md" answers model "mock-transform". The /transform
// endpoint answers from the "transform" fixture unless ?model= says otherwise.
//
// Sequential fixtures: numbered files ("mock-transform.1.md",
// "mock-transform.2.md") are served in order on successive calls for that
// model, then the base file repeats. Streams are cut into -chunk byte deltas
// so section markers regularly straddle delta boundaries.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chunkResponse struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// transformRequest is the body the http backend posts to /transform.
type transformRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request for test verification.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	CallIndex int           `json:"call_index"` // 1-indexed per-model call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures  map[string][]string // model name → ordered answers
	chunkSize int
	delay     time.Duration
	failAfter int // abort streams after this many deltas (0 = never)
	logger    *slog.Logger
	calls     atomic.Int64

	modelCalls   map[string]*atomic.Int64
	modelCallsMu sync.Mutex

	modelRequests   map[string][]capturedRequest
	modelRequestsMu sync.Mutex
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures:      fixtures,
		chunkSize:     16,
		logger:        logger,
		modelCalls:    make(map[string]*atomic.Int64),
		modelRequests: make(map[string][]capturedRequest),
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/transform", s.handleTransform)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing answer fixtures")
	port := flag.Int("port", 11434, "port to listen on")
	chunk := flag.Int("chunk", 16, "bytes per streamed delta")
	delay := flag.Duration("delay", 0, "pause between streamed deltas")
	failAfter := flag.Int("fail-after", 0, "abort every stream after N deltas (0 = never)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded fixtures", "dir", *fixtureDir, "models", len(fixtures))
	for model, seq := range fixtures {
		logger.Info("Fixture", "model", model, "answers", len(seq))
	}

	s := newServer(fixtures, logger)
	if *chunk > 0 {
		s.chunkSize = *chunk
	}
	s.delay = *delay
	s.failAfter = *failAfter

	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Mock model server listening", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// resolve picks the next answer for model, trying the exact name and then
// the name without its "mock-" prefix.
func (s *server) resolve(model string) (string, int, bool) {
	seq, ok := s.fixtures[model]
	if !ok {
		seq, ok = s.fixtures[strings.TrimPrefix(model, "mock-")]
	}
	if !ok {
		return "", 0, false
	}
	callIndex := int(s.modelCounter(model).Add(1) - 1)
	if callIndex < len(seq) {
		return seq[callIndex], callIndex + 1, true
	}
	return seq[len(seq)-1], callIndex + 1, true
}

func (s *server) modelCounter(model string) *atomic.Int64 {
	s.modelCallsMu.Lock()
	defer s.modelCallsMu.Unlock()
	if c, ok := s.modelCalls[model]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.modelCalls[model] = c
	return c
}

func (s *server) capture(c capturedRequest) {
	s.modelRequestsMu.Lock()
	defer s.modelRequestsMu.Unlock()
	c.Timestamp = time.Now().UnixMilli()
	s.modelRequests[c.Model] = append(s.modelRequests[c.Model], c)
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	answer, callIndex, ok := s.resolve(req.Model)
	if !ok {
		s.logger.Warn("No fixture for model", "call", callNum, "model", req.Model)
		http.Error(w, fmt.Sprintf("no fixture for model %q", req.Model), http.StatusNotFound)
		return
	}
	s.capture(capturedRequest{Model: req.Model, Messages: req.Messages, Stream: req.Stream, CallIndex: callIndex})
	s.logger.Info("Chat completion", "call", callNum, "model", req.Model, "call_index", callIndex, "stream", req.Stream)

	id := fmt.Sprintf("mock-%d", time.Now().UnixNano())
	if req.Stream {
		s.streamChat(w, r, id, req.Model, answer)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(chatResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: answer},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     len(answer) / 4,
			CompletionTokens: len(answer) / 4,
			TotalTokens:      len(answer) / 2,
		},
	})
}

// streamChat writes answer as chat.completion.chunk events.
func (s *server) streamChat(w http.ResponseWriter, r *http.Request, id, model, answer string) {
	created := time.Now().Unix()
	chunk := func(delta chunkDelta, finish *string) any {
		return chunkResponse{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   model,
			Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
		}
	}

	events := []any{chunk(chunkDelta{Role: "assistant"}, nil)}
	for _, d := range splitDeltas(answer, s.chunkSize) {
		events = append(events, chunk(chunkDelta{Content: d}, nil))
	}
	stop := "stop"
	events = append(events, chunk(chunkDelta{}, &stop))

	s.writeSSE(w, r, events)
}

// handleTransform speaks the transform-service protocol: the body carries the
// solver code and each SSE event carries {"content": delta}.
func (s *server) handleTransform(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		model = "transform"
	}
	callNum := s.calls.Add(1)
	answer, callIndex, ok := s.resolve(model)
	if !ok {
		http.Error(w, fmt.Sprintf("no fixture for model %q", model), http.StatusNotFound)
		return
	}
	s.capture(capturedRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: req.Code},
			{Role: "user", Content: req.Description},
		},
		Stream:    true,
		CallIndex: callIndex,
	})
	s.logger.Info("Transform", "call", callNum, "model", model, "call_index", callIndex, "code_bytes", len(req.Code))

	deltas := splitDeltas(answer, s.chunkSize)
	events := make([]any, len(deltas))
	for i, d := range deltas {
		events[i] = map[string]string{"content": d}
	}
	s.writeSSE(w, r, events)
}

// writeSSE streams events followed by [DONE]. With failAfter set the
// connection is aborted mid-stream instead.
func (s *server) writeSSE(w http.ResponseWriter, r *http.Request, events []any) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for i, ev := range events {
		if s.failAfter > 0 && i >= s.failAfter {
			s.logger.Info("Aborting stream", "after", i)
			panic(http.ErrAbortHandler)
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
		if s.delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.delay):
			}
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// splitDeltas cuts text into pieces of at most size bytes without splitting
// a UTF-8 sequence.
func splitDeltas(text string, size int) []string {
	if size <= 0 || len(text) <= size {
		if text == "" {
			return nil
		}
		return []string{text}
	}
	var out []string
	for len(text) > 0 {
		n := size
		if n >= len(text) {
			n = len(text)
		} else {
			for n > 0 && !utf8.RuneStart(text[n]) {
				n--
			}
			if n == 0 {
				_, n = utf8.DecodeRuneInString(text)
			}
		}
		out = append(out, text[:n])
		text = text[n:]
	}
	return out
}

// handleModels returns the list of available mock models (Ollama-compatible).
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	names := make([]string, 0, len(s.fixtures))
	for name := range s.fixtures {
		names = append(names, name)
	}
	sort.Strings(names)

	models := make([]modelEntry, 0, len(names))
	for _, name := range names {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data":   models,
	})
}

// handleStats returns total and per-model call counts.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.modelCallsMu.Lock()
	callsByModel := make(map[string]int64, len(s.modelCalls))
	for model, counter := range s.modelCalls {
		callsByModel[model] = counter.Load()
	}
	s.modelCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_model": callsByModel,
	})
}

// handleRequests returns captured requests, filtered by ?model= and ?call=.
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	modelFilter := r.URL.Query().Get("model")
	callFilter, callErr := strconv.Atoi(r.URL.Query().Get("call"))

	s.modelRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for model, reqs := range s.modelRequests {
		if modelFilter != "" && model != modelFilter {
			continue
		}
		for _, req := range reqs {
			if callErr == nil && req.CallIndex != callFilter {
				continue
			}
			result[model] = append(result[model], req)
		}
	}
	s.modelRequestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_model": result,
	})
}

// numberedFileRe matches files like "mock-transform.1.md".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(md|txt)$`)

// loadFixtures reads .md and .txt answers from dir. Numbered files come first
// in numeric order; the base file is appended as the repeating fallback.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)
	numberedFiles := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(d.Name())
		if d.IsDir() || (ext != ".md" && ext != ".txt") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !utf8.Valid(data) {
			return fmt.Errorf("fixture %s is not valid UTF-8", path)
		}

		if m := numberedFileRe.FindStringSubmatch(d.Name()); m != nil {
			index, _ := strconv.Atoi(m[2])
			if numberedFiles[m[1]] == nil {
				numberedFiles[m[1]] = make(map[int]string)
			}
			numberedFiles[m[1]][index] = string(data)
			return nil
		}
		baseFiles[strings.TrimSuffix(d.Name(), ext)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}

	models := make(map[string]bool)
	for m := range baseFiles {
		models[m] = true
	}
	for m := range numberedFiles {
		models[m] = true
	}

	fixtures := make(map[string][]string)
	for model := range models {
		var seq []string
		if numbered, ok := numberedFiles[model]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}
		if base, ok := baseFiles[model]; ok {
			seq = append(seq, base)
		}
		fixtures[model] = seq
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
