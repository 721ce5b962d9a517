package scenarios

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/graph"
	"github.com/c360studio/semsolver/vocabulary/solver"
)

func TestRunStages_StopsAtFirstFailure(t *testing.T) {
	result := NewResult("demo")
	var ran []string

	runStages(context.Background(), result, time.Second, []stage{
		{name: "one", fn: func(context.Context, *Result) error { ran = append(ran, "one"); return nil }},
		{name: "two", fn: func(context.Context, *Result) error { ran = append(ran, "two"); return errors.New("boom") }},
		{name: "three", fn: func(context.Context, *Result) error { ran = append(ran, "three"); return nil }},
	})

	assert.Equal(t, []string{"one", "two"}, ran)
	assert.False(t, result.Success)
	assert.Equal(t, "two failed: boom", result.Error)
	require.Len(t, result.Stages, 2)
	assert.True(t, result.Stages[0].Success)
	assert.False(t, result.Stages[1].Success)
	assert.Contains(t, result.Metrics, "one_duration_ms")
}

func TestRunStages_StageTimeoutOverride(t *testing.T) {
	result := NewResult("demo")
	var deadlines []time.Duration

	record := func(ctx context.Context, _ *Result) error {
		d, ok := ctx.Deadline()
		require.True(t, ok)
		deadlines = append(deadlines, time.Until(d))
		return nil
	}
	runStages(context.Background(), result, time.Second, []stage{
		{name: "short", fn: record},
		{name: "long", fn: record, timeout: time.Minute},
	})

	require.True(t, result.Success)
	require.Len(t, deadlines, 2)
	assert.LessOrEqual(t, deadlines[0], time.Second)
	assert.Greater(t, deadlines[1], time.Second)
}

func TestCheckEntity(t *testing.T) {
	id := graph.DescriptorEntityID("abc")
	entity := &graph.EntityPayload{
		EntityID_: id,
		TripleData: []message.Triple{
			{Subject: id, Predicate: solver.DescriptorName, Object: "maxcut"},
			{Subject: id, Predicate: solver.DescriptorCostFunction, Object: "def cut_cost(): ..."},
		},
	}
	assert.NoError(t, checkEntity(entity, id))
	assert.Error(t, checkEntity(entity, graph.DescriptorEntityID("other")))

	entity.TripleData = entity.TripleData[:1]
	assert.Error(t, checkEntity(entity, id))
}

func TestResult_Complete(t *testing.T) {
	result := NewResult("demo")
	result.SetDetail("request_id", "r1")
	result.AddWarning("w")
	result.Complete()

	got, ok := result.GetDetailString("request_id")
	assert.True(t, ok)
	assert.Equal(t, "r1", got)
	assert.False(t, result.EndTime.Before(result.StartTime))
	assert.Equal(t, []string{"w"}, result.Warnings)
}
