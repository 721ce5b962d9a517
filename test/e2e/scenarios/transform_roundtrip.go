package scenarios

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	solvertransformer "github.com/c360studio/semsolver/processor/solver-transformer"
	"github.com/c360studio/semsolver/test/e2e/client"
	"github.com/c360studio/semsolver/test/e2e/config"
)

// maxcutSolver is the source sent with every e2e transform request.
const maxcutSolver = `import random

N, P = 12, 0.5

def cut_cost(edges, side):
    return sum(1 for u, v in edges if side[u] != side[v])

def solve(edges):
    side = [random.randint(0, 1) for _ in range(N)]
    return cut_cost(edges, side)
`

// TransformRoundtripScenario publishes a transform request and checks that
// a completed result with a stored descriptor comes back.
type TransformRoundtripScenario struct {
	config *config.Config
	nats   *client.NATSClient
	mock   *client.MockLLMClient

	callsBefore int64
}

// NewTransformRoundtripScenario creates the scenario.
func NewTransformRoundtripScenario(cfg *config.Config) *TransformRoundtripScenario {
	return &TransformRoundtripScenario{config: cfg}
}

func (s *TransformRoundtripScenario) Name() string { return "transform-roundtrip" }

func (s *TransformRoundtripScenario) Description() string {
	return "Publishes a transform request and waits for a completed, stored descriptor"
}

// Setup connects to NATS and waits for the solver stream and the mock LLM.
func (s *TransformRoundtripScenario) Setup(ctx context.Context) error {
	setupCtx, cancel := context.WithTimeout(ctx, s.config.SetupTimeout)
	defer cancel()

	nc, err := client.NewNATSClient(setupCtx, s.config.NATSURL)
	if err != nil {
		return err
	}
	s.nats = nc

	if err := s.nats.WaitForStream(setupCtx, config.SolverStream, config.DefaultPollInterval); err != nil {
		return err
	}

	if s.config.MockLLMURL != "" {
		s.mock = client.NewMockLLMClient(s.config.MockLLMURL)
		if err := s.mock.WaitForHealthy(setupCtx, config.DefaultPollInterval); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the scenario stages.
func (s *TransformRoundtripScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.Name())
	defer result.Complete()

	runStages(ctx, result, s.config.StageTimeout, []stage{
		{name: "snapshot-mock-stats", fn: s.stageSnapshotStats},
		{name: "send-request", fn: s.stageSendRequest},
		{name: "await-result", fn: s.stageAwaitResult, timeout: s.config.TransformTimeout},
		{name: "verify-mock-calls", fn: s.stageVerifyMockCalls},
	})
	return result, nil
}

// Teardown closes the NATS connection.
func (s *TransformRoundtripScenario) Teardown(ctx context.Context) error {
	if s.nats == nil {
		return nil
	}
	return s.nats.Close(ctx)
}

func (s *TransformRoundtripScenario) stageSnapshotStats(ctx context.Context, result *Result) error {
	if s.mock == nil {
		result.AddWarning("mock LLM url not set; call counts are not checked")
		return nil
	}
	stats, err := s.mock.GetStats(ctx)
	if err != nil {
		return err
	}
	s.callsBefore = stats.TotalCalls
	return nil
}

func (s *TransformRoundtripScenario) stageSendRequest(ctx context.Context, result *Result) error {
	requestID, err := sendMaxcut(ctx, s.nats)
	if err != nil {
		return err
	}
	result.SetDetail("request_id", requestID)
	return nil
}

func (s *TransformRoundtripScenario) stageAwaitResult(ctx context.Context, result *Result) error {
	requestID, _ := result.GetDetailString("request_id")
	res, err := awaitCompleted(ctx, s.nats, requestID)
	if err != nil {
		return err
	}
	result.SetDetail("descriptor_id", res.DescriptorID)

	if !strings.Contains(res.Code, "def cut_cost") {
		return fmt.Errorf("transformed code lost the cost function")
	}
	if res.Analysis == "" || res.Verification == "" {
		return fmt.Errorf("result is missing analysis or verification text")
	}
	return nil
}

func (s *TransformRoundtripScenario) stageVerifyMockCalls(ctx context.Context, result *Result) error {
	if s.mock == nil {
		return nil
	}
	stats, err := s.mock.GetStats(ctx)
	if err != nil {
		return err
	}
	calls := stats.TotalCalls - s.callsBefore
	result.SetMetric("mock_llm_calls", calls)
	if calls < 1 {
		return fmt.Errorf("mock LLM was not called")
	}
	return nil
}

// sendMaxcut publishes the maxcut solver under a fresh request id.
func sendMaxcut(ctx context.Context, nc *client.NATSClient) (string, error) {
	req := &solvertransformer.TransformRequest{
		RequestID:   uuid.New().String(),
		Name:        "maxcut",
		Path:        "solvers/maxcut.py",
		Code:        maxcutSolver,
		Description: "Partition the vertices of a graph to maximise the number of cut edges.",
	}
	if err := nc.SendTransform(ctx, req); err != nil {
		return "", fmt.Errorf("send transform request: %w", err)
	}
	return req.RequestID, nil
}

// awaitCompleted waits for a completed result that carries a descriptor id.
func awaitCompleted(ctx context.Context, nc *client.NATSClient, requestID string) (*solvertransformer.TransformResult, error) {
	res, err := nc.WaitForResult(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if res.Status != solvertransformer.StatusCompleted {
		return nil, fmt.Errorf("status %s (%s): %s %v", res.Status, res.ErrorKind, res.Error, res.Missing)
	}
	if res.DescriptorID == "" {
		return nil, fmt.Errorf("completed result has no descriptor id")
	}
	return res, nil
}
