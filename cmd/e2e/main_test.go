package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/test/e2e/scenarios"
)

func TestListCmd(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "transform-roundtrip")
	assert.Contains(t, out.String(), "graph-publishing")
}

func TestRun_UnknownScenario(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"no-such-scenario"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown scenario")
}

func TestWriteJSONResults(t *testing.T) {
	passed := scenarios.NewResult("a")
	passed.Success = true
	failed := scenarios.NewResult("b")

	var out bytes.Buffer
	require.NoError(t, writeJSONResults(&out, []*scenarios.Result{passed, failed}))

	var decoded struct {
		Summary summary `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, summary{Total: 2, Passed: 1, Failed: 1}, decoded.Summary)
}
