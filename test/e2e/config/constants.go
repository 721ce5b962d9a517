// Package config provides configuration constants for e2e tests.
package config

import "time"

// Default connection URLs.
const (
	DefaultNATSURL    = "nats://localhost:4222"
	DefaultMockLLMURL = "http://localhost:11434"
)

// Default timeouts.
const (
	DefaultSetupTimeout     = 60 * time.Second
	DefaultStageTimeout     = 30 * time.Second
	DefaultTransformTimeout = 2 * time.Minute
	DefaultPollInterval     = 250 * time.Millisecond
)

// Subjects and streams served by `semsolver serve`.
const (
	SolverStream        = "SOLVER"
	GraphStream         = "GRAPH"
	RequestSubject      = "solver.transform.request"
	ResultSubjectPrefix = "solver.transform.result"
	EntitySubject       = "graph.ingest.entity"
)

// E2ESource tags messages published by the runner.
const E2ESource = "semsolver-e2e"

// Config holds the e2e test configuration.
type Config struct {
	NATSURL    string `json:"nats_url"`
	MockLLMURL string `json:"mock_llm_url"`

	SetupTimeout     time.Duration `json:"setup_timeout"`
	StageTimeout     time.Duration `json:"stage_timeout"`
	TransformTimeout time.Duration `json:"transform_timeout"`

	// ExpectGraph requires descriptor entities on graph.ingest.entity.
	ExpectGraph bool `json:"expect_graph"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		NATSURL:          DefaultNATSURL,
		MockLLMURL:       DefaultMockLLMURL,
		SetupTimeout:     DefaultSetupTimeout,
		StageTimeout:     DefaultStageTimeout,
		TransformTimeout: DefaultTransformTimeout,
	}
}
