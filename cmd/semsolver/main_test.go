package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/config"
	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/storage"
)

const maxcut = `import random

N, P = 12, 0.5

def cut_cost(edges, side):
    return sum(1 for u, v in edges if side[u] != side[v])

def solve(edges):
    side = [random.randint(0, 1) for _ in range(N)]
    return cut_cost(edges, side)
`

type env struct {
	dir    string
	config string
}

// newEnv writes a solver source and a config pointing at a throwaway store.
func newEnv(t *testing.T, extraConfig string) env {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maxcut.py"), []byte(maxcut), 0644))

	cfg := fmt.Sprintf("store:\n  kind: sqlite\n  path: %s\n%s", filepath.Join(dir, "descriptors.db"), extraConfig)
	path := filepath.Join(dir, "semsolver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return env{dir: dir, config: path}
}

func (e env) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", e.config, "--root", e.dir}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

var savedID = regexp.MustCompile(`saved (\S+)`)

func TestVersion(t *testing.T) {
	e := newEnv(t, "")
	out, _, err := e.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "semsolver version "+Version)
}

func TestMark_SaveListShowDelete(t *testing.T) {
	e := newEnv(t, "")

	out, stderr, err := e.run(t, "mark", "maxcut.py",
		"--input-parameters", "3",
		"--cost-function", "5:6",
		"--algorithm-logic", "8:10",
		"--description", "max-cut",
		"--save", "-o", "json")
	require.NoError(t, err, stderr)

	var d descriptor.SolverDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "maxcut", d.Name)
	assert.Equal(t, "max-cut", d.Description)
	assert.Equal(t, "N, P = 12, 0.5\n", d.InputParameters.Text)
	assert.Contains(t, d.CostFunction.Text, "def cut_cost")
	assert.Contains(t, d.AlgorithmLogic.Text, "def solve")

	m := savedID.FindStringSubmatch(stderr)
	require.Len(t, m, 2, "stderr: %s", stderr)
	id := m[1]

	out, _, err = e.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "manual")

	out, _, err = e.run(t, "show", id, "-o", "json")
	require.NoError(t, err)
	var rec storage.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, d, rec.Descriptor)
	assert.Equal(t, "maxcut.py", rec.Source.Path)
	assert.NotEmpty(t, rec.Source.Hash)

	out, _, err = e.run(t, "export", id, "-f", "ntriples")
	require.NoError(t, err)
	assert.Contains(t, out, "<https://semsolver.dev/entity/solver/descriptor/"+id+">")
	assert.Contains(t, out, `"maxcut"`)

	rdfPath := filepath.Join(e.dir, "all.ttl")
	_, stderr, err = e.run(t, "export", "-o", rdfPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "exported 1 descriptor(s)")
	assert.FileExists(t, rdfPath)

	out, _, err = e.run(t, "delete", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+id)

	_, _, err = e.run(t, "show", id)
	assert.ErrorContains(t, err, "not found")
}

func TestMark_Incomplete(t *testing.T) {
	e := newEnv(t, "")

	_, stderr, err := e.run(t, "mark", "maxcut.py", "--cost-function", "5:6")
	require.Error(t, err)
	assert.True(t, descriptor.IsIncomplete(err))
	assert.Contains(t, stderr, descriptor.FieldInputParameters)
	assert.Contains(t, stderr, descriptor.FieldAlgorithmLogic)
}

func TestMark_Suggest(t *testing.T) {
	e := newEnv(t, "")

	out, stderr, err := e.run(t, "mark", "maxcut.py", "--suggest", "-o", "json")
	require.NoError(t, err, stderr)

	var d descriptor.SolverDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.NoError(t, d.Complete())
	assert.Contains(t, d.InputParameters.Text, "N, P = 12, 0.5")
	assert.Contains(t, d.CostFunction.Text, "def cut_cost")
	assert.Contains(t, d.AlgorithmLogic.Text, "def solve")
}

func TestMark_Offsets(t *testing.T) {
	e := newEnv(t, "")
	start := strings.Index(maxcut, "N, P")
	end := start + len("N, P = 12, 0.5")

	out, stderr, err := e.run(t, "mark", "maxcut.py", "--offsets",
		"--input-parameters", fmt.Sprintf("%d:%d", start, end),
		"--cost-function", "0:13",
		"--algorithm-logic", fmt.Sprintf("%d:%d", strings.Index(maxcut, "def solve"), len(maxcut)),
		"-o", "json")
	require.NoError(t, err, stderr)

	var d descriptor.SolverDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	assert.Equal(t, "N, P = 12, 0.5", d.InputParameters.Text)
	assert.Equal(t, start, d.InputParameters.Start)
}

func TestMark_OutsideRoot(t *testing.T) {
	e := newEnv(t, "")
	_, _, err := e.run(t, "mark", "../elsewhere.py", "--suggest")
	assert.Error(t, err)
}

func TestParseOffsets(t *testing.T) {
	tests := []struct {
		spec    string
		start   int
		end     int
		wantErr bool
	}{
		{spec: "0:10", start: 0, end: 10},
		{spec: " 4 : 9 ", start: 4, end: 9},
		{spec: "12", wantErr: true},
		{spec: "a:3", wantErr: true},
		{spec: "3:b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			r, err := parseOffsets(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, tt.end, r.End)
		})
	}
}

func sseServer(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			payload, _ := json.Marshal(map[string]string{"content": d})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func transformedAnswer() []string {
	code := strings.Replace(maxcut, "import random\n", "import random\nimport itertools\n", 1)
	return []string{
		"# Analysis\n", "Random max-cut baseline.",
		"\n# Transformed Code\n", "```python\n", code, "```\n",
		"# Verification Steps\n", "Compare cut values on a fixed seed.",
	}
}

func TestTransform_HTTPBackend(t *testing.T) {
	srv := sseServer(t, transformedAnswer()...)
	e := newEnv(t, fmt.Sprintf("backend:\n  kind: http\n  url: %s\n", srv.URL))

	out, stderr, err := e.run(t, "transform", "maxcut.py", "--description", "max-cut", "-q", "--diff", "--save")
	require.NoError(t, err, stderr)

	assert.Contains(t, out, "== Analysis ==")
	assert.Contains(t, out, "Random max-cut baseline.")
	assert.Contains(t, out, "Compare cut values on a fixed seed.")
	assert.Contains(t, out, "+import itertools")

	m := savedID.FindStringSubmatch(out)
	require.Len(t, m, 2, "stdout: %s", out)

	listed, _, err := e.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, listed, m[1])
	assert.Contains(t, listed, "transformed")
}

func TestTransform_StreamsLive(t *testing.T) {
	srv := sseServer(t, transformedAnswer()...)
	e := newEnv(t, fmt.Sprintf("backend:\n  kind: http\n  url: %s\n", srv.URL))

	out, stderr, err := e.run(t, "transform", "maxcut.py")
	require.NoError(t, err, stderr)
	assert.Contains(t, out, "# Analysis")
	assert.Contains(t, out, "```python")
	assert.NotContains(t, out, "saved")
}

func TestTransform_UnclosedFence(t *testing.T) {
	answer := transformedAnswer()[:5]
	srv := sseServer(t, answer...)
	e := newEnv(t, fmt.Sprintf("backend:\n  kind: http\n  url: %s\n", srv.URL))

	out, _, err := e.run(t, "transform", "maxcut.py", "-q")
	require.Error(t, err)
	assert.True(t, descriptor.IsIncomplete(err))
	assert.Contains(t, out, "descriptor incomplete")

	out, stderr, err := e.run(t, "transform", "maxcut.py", "-q", "--flush-unclosed")
	require.NoError(t, err, stderr)
	assert.Contains(t, out, "import itertools")
}

func TestTransform_BackendRefuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid key", http.StatusUnauthorized)
	}))
	defer srv.Close()
	e := newEnv(t, fmt.Sprintf("backend:\n  kind: http\n  url: %s\n", srv.URL))

	_, _, err := e.run(t, "transform", "maxcut.py", "-q")
	assert.Error(t, err)
}

func TestUnifiedDiff(t *testing.T) {
	diff, err := unifiedDiff("a.py", "b.py", "x = 1\ny = 2\n", "x = 1\ny = 3\n")
	require.NoError(t, err)
	assert.Contains(t, diff, "--- a.py")
	assert.Contains(t, diff, "+++ b.py")
	assert.Contains(t, diff, "-y = 2")
	assert.Contains(t, diff, "+y = 3")

	var buf bytes.Buffer
	printDiff(&buf, diff)
	assert.Contains(t, buf.String(), "+y = 3")
}

func TestSources(t *testing.T) {
	e := newEnv(t, "")
	require.NoError(t, os.MkdirAll(filepath.Join(e.dir, ".venv"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.dir, ".venv", "site.py"), []byte("x = 1\n"), 0644))

	out, _, err := e.run(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "maxcut.py")
	assert.NotContains(t, out, "site.py")
}

func TestConfigShow(t *testing.T) {
	e := newEnv(t, "model:\n  temperature: 0.4\n")
	out, _, err := e.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "temperature: 0.4")
	assert.Contains(t, out, filepath.Join(e.dir, "descriptors.db"))
}

func TestProcessorConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.Kind = "http"
	cfg.Backend.URL = "http://svc/transform"
	cfg.Backend.Timeout = 2 * time.Minute
	cfg.Transform.FlushUnclosed = true
	a := &app{cfg: cfg}

	raw, err := a.processorConfig(serveOptions{streamName: "SOLVER_TEST", dryRun: true, graph: true})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "SOLVER_TEST", got["stream_name"])
	assert.Equal(t, "http", got["backend"])
	assert.Equal(t, "http://svc/transform", got["backend_url"])
	assert.Equal(t, "2m0s", got["timeout"])
	assert.Equal(t, true, got["flush_unclosed"])
	assert.Equal(t, true, got["dry_run"])
	assert.Equal(t, true, got["publish_graph"])

	cfg.Backend.URL = ""
	_, err = a.processorConfig(serveOptions{streamName: "SOLVER"})
	assert.Error(t, err)
}
