package scenarios

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semsolver/graph"
	"github.com/c360studio/semsolver/test/e2e/client"
	"github.com/c360studio/semsolver/test/e2e/config"
	"github.com/c360studio/semsolver/vocabulary/solver"
)

// GraphPublishingScenario checks that a stored descriptor is published for
// graph ingestion when `semsolver serve --graph` is running.
type GraphPublishingScenario struct {
	config *config.Config
	nats   *client.NATSClient

	graphReady  bool
	graphBefore uint64
}

// NewGraphPublishingScenario creates the scenario.
func NewGraphPublishingScenario(cfg *config.Config) *GraphPublishingScenario {
	return &GraphPublishingScenario{config: cfg}
}

func (s *GraphPublishingScenario) Name() string { return "graph-publishing" }

func (s *GraphPublishingScenario) Description() string {
	return "Checks that stored descriptors reach graph.ingest.entity"
}

// Setup connects to NATS and looks for the graph stream.
func (s *GraphPublishingScenario) Setup(ctx context.Context) error {
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

	if !s.config.ExpectGraph {
		_, err := s.nats.StreamMessages(setupCtx, config.GraphStream)
		s.graphReady = err == nil
		return nil
	}
	if err := s.nats.WaitForStream(setupCtx, config.GraphStream, config.DefaultPollInterval); err != nil {
		return err
	}
	s.graphReady = true
	return nil
}

// Execute runs the scenario stages.
func (s *GraphPublishingScenario) Execute(ctx context.Context) (*Result, error) {
	result := NewResult(s.Name())
	defer result.Complete()

	if !s.graphReady {
		result.AddWarning("GRAPH stream not found; run serve with --graph or pass --expect-graph")
		result.SetDetail("entity_published", false)
		result.Success = true
		return result, nil
	}

	runStages(ctx, result, s.config.StageTimeout, []stage{
		{name: "count-entities", fn: s.stageCountEntities},
		{name: "send-request", fn: s.stageSendRequest},
		{name: "await-result", fn: s.stageAwaitResult, timeout: s.config.TransformTimeout},
		{name: "verify-entity", fn: s.stageVerifyEntity},
	})
	return result, nil
}

// Teardown closes the NATS connection.
func (s *GraphPublishingScenario) Teardown(ctx context.Context) error {
	if s.nats == nil {
		return nil
	}
	return s.nats.Close(ctx)
}

func (s *GraphPublishingScenario) stageCountEntities(ctx context.Context, _ *Result) error {
	n, err := s.nats.StreamMessages(ctx, config.GraphStream)
	if err != nil {
		return err
	}
	s.graphBefore = n
	return nil
}

func (s *GraphPublishingScenario) stageSendRequest(ctx context.Context, result *Result) error {
	requestID, err := sendMaxcut(ctx, s.nats)
	if err != nil {
		return err
	}
	result.SetDetail("request_id", requestID)
	return nil
}

func (s *GraphPublishingScenario) stageAwaitResult(ctx context.Context, result *Result) error {
	requestID, _ := result.GetDetailString("request_id")
	res, err := awaitCompleted(ctx, s.nats, requestID)
	if err != nil {
		return err
	}
	result.SetDetail("descriptor_id", res.DescriptorID)
	return nil
}

// stageVerifyEntity polls until the entity for the stored descriptor arrives.
func (s *GraphPublishingScenario) stageVerifyEntity(ctx context.Context, result *Result) error {
	descriptorID, _ := result.GetDetailString("descriptor_id")
	want := graph.DescriptorEntityID(descriptorID)

	var lastErr error
	for {
		if n, err := s.nats.StreamMessages(ctx, config.GraphStream); err == nil && n > s.graphBefore {
			entity, err := s.nats.LastEntity(ctx)
			if err == nil {
				lastErr = checkEntity(entity, want)
				if lastErr == nil {
					result.SetDetail("entity_id", entity.EntityID())
					result.SetDetail("entity_published", true)
					return nil
				}
			} else {
				lastErr = err
			}
		}

		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = errors.New("no entity published")
			}
			return fmt.Errorf("%w: %w", lastErr, ctx.Err())
		case <-time.After(config.DefaultPollInterval):
		}
	}
}

func checkEntity(entity *graph.EntityPayload, wantID string) error {
	if entity.EntityID() != wantID {
		return fmt.Errorf("last entity is %s, want %s", entity.EntityID(), wantID)
	}
	for _, t := range entity.Triples() {
		if t.Predicate == solver.DescriptorCostFunction {
			return nil
		}
	}
	return fmt.Errorf("entity %s has no %s triple", wantID, solver.DescriptorCostFunction)
}
