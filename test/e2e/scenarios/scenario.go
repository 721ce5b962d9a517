// Package scenarios defines the e2e scenarios run against a live
// `semsolver serve` with NATS and the mock LLM.
package scenarios

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scenario is one end-to-end check.
type Scenario interface {
	Name() string
	Description() string

	// Setup waits for the services the scenario depends on.
	Setup(ctx context.Context) error

	// Execute runs the scenario. A returned error means the scenario could
	// not run at all; assertion failures are reported in the Result.
	Execute(ctx context.Context) (*Result, error)

	Teardown(ctx context.Context) error
}

// Result contains the outcome of a scenario execution.
// All methods are safe for concurrent use.
type Result struct {
	mu sync.Mutex `json:"-"`

	ScenarioName string        `json:"scenario_name"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Metrics  map[string]any `json:"metrics,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Errors   []string       `json:"errors,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
	Stages   []StageResult  `json:"stages,omitempty"`
}

// StageResult represents the outcome of a single stage in a scenario.
type StageResult struct {
	Name     string        `json:"name"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// NewResult creates a new Result initialized for the given scenario.
func NewResult(scenarioName string) *Result {
	return &Result{
		ScenarioName: scenarioName,
		StartTime:    time.Now(),
		Metrics:      make(map[string]any),
		Details:      make(map[string]any),
	}
}

// Complete sets the end time and duration.
func (r *Result) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// AddError adds an error to the result.
func (r *Result) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the result.
func (r *Result) AddWarning(warning string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, warning)
}

// AddStage adds a completed stage to the result.
func (r *Result) AddStage(name string, success bool, duration time.Duration, err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages = append(r.Stages, StageResult{
		Name:     name,
		Success:  success,
		Duration: duration,
		Error:    err,
	})
}

// SetMetric sets a metric value.
func (r *Result) SetMetric(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Metrics[key] = value
}

// SetDetail sets a detail value.
func (r *Result) SetDetail(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Details[key] = value
}

// GetDetailString retrieves a string detail value.
func (r *Result) GetDetailString(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.Details[key].(string)
	return s, ok
}

type stage struct {
	name string
	fn   func(context.Context, *Result) error
	// timeout overrides the default stage timeout when set.
	timeout time.Duration
}

// runStages runs stages in order, each under its own timeout, and stops at
// the first failure.
func runStages(ctx context.Context, result *Result, timeout time.Duration, stages []stage) {
	for _, st := range stages {
		start := time.Now()
		limit := timeout
		if st.timeout > 0 {
			limit = st.timeout
		}
		stageCtx, cancel := context.WithTimeout(ctx, limit)
		err := st.fn(stageCtx, result)
		cancel()

		elapsed := time.Since(start)
		result.SetMetric(st.name+"_duration_ms", elapsed.Milliseconds())

		if err != nil {
			result.AddStage(st.name, false, elapsed, err.Error())
			result.AddError(fmt.Sprintf("%s: %v", st.name, err))
			result.Error = fmt.Sprintf("%s failed: %v", st.name, err)
			return
		}
		result.AddStage(st.name, true, elapsed, "")
	}
	result.Success = true
}
