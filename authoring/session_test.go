package authoring_test

import (
	"context"
	"errors"
	"testing"

	"github.com/c360studio/semsolver/authoring"
	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/selection"
	"github.com/c360studio/semsolver/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const source = `import random

N = 8

def energy(x):
    return sum(x)

def anneal(steps):
    x = [random.random() for _ in range(N)]
    return energy(x)
`

func TestSession_ManualMarking(t *testing.T) {
	s := authoring.NewSession("solver.py", source, authoring.WithName("annealer"), authoring.WithDescription("toy"))

	_, err := s.MarkLines(selection.RoleInputParameters, 1, 3)
	require.NoError(t, err)
	_, err = s.MarkLines(selection.RoleCostFunction, 5, 6)
	require.NoError(t, err)

	_, err = s.BuildManual()
	require.Error(t, err)
	assert.Equal(t, []string{descriptor.FieldAlgorithmLogic}, descriptor.MissingFields(err))
	assert.Equal(t, []selection.Role{selection.RoleAlgorithmLogic}, s.Missing())

	_, err = s.MarkLines(selection.RoleAlgorithmLogic, 8, 10)
	require.NoError(t, err)

	d, err := s.BuildManual()
	require.NoError(t, err)
	assert.Equal(t, "annealer", d.Name)
	assert.Equal(t, "toy", d.Description)
	assert.Equal(t, "def energy(x):\n    return sum(x)\n", d.CostFunction.Text)
	assert.Equal(t, source[d.AlgorithmLogic.Start:d.AlgorithmLogic.End], d.AlgorithmLogic.Text)
}

func TestSession_MarkReplacesPreviousSelection(t *testing.T) {
	s := authoring.NewSession("solver.py", source)

	_, err := s.MarkLines(selection.RoleCostFunction, 1, 1)
	require.NoError(t, err)
	_, err = s.MarkLines(selection.RoleCostFunction, 5, 6)
	require.NoError(t, err)

	sel, ok := s.Selection(selection.RoleCostFunction)
	require.True(t, ok)
	assert.Equal(t, "def energy(x):\n    return sum(x)\n", sel.Text)
}

func TestSession_MarkBlankFails(t *testing.T) {
	s := authoring.NewSession("solver.py", source)

	_, err := s.MarkLines(selection.RoleCostFunction, 2, 2)
	assert.ErrorIs(t, err, selection.ErrEmptySelection)

	_, ok := s.Selection(selection.RoleCostFunction)
	assert.False(t, ok)
}

func TestSession_Reset(t *testing.T) {
	s := authoring.NewSession("solver.py", source)
	_, err := s.MarkLines(selection.RoleCostFunction, 5, 6)
	require.NoError(t, err)

	s.Reset()
	assert.Len(t, s.Missing(), 3)
}

func transformedAnswer(code string) []string {
	return []string{
		"# Analysis\n", "Simulated annealing over N bits.",
		"\n# Transformed Code\n", "```python\n", code, "\n```\n",
		"# Verification Steps\n", "Run both versions.",
	}
}

func TestSession_TransformAndBuild(t *testing.T) {
	s := authoring.NewSession("solver.py", source, authoring.WithName("annealer"))

	result, err := s.Transform(context.Background(), backend.Static(transformedAnswer(source)...))
	require.NoError(t, err)
	assert.Equal(t, "\nSimulated annealing over N bits.\n", result.Analysis)

	stored, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, result, stored)

	d, err := s.BuildTransformed(context.Background())
	require.NoError(t, err)
	assert.Contains(t, d.InputParameters.Text, "N = 8")
	assert.Contains(t, d.CostFunction.Text, "def energy")
	assert.Contains(t, d.AlgorithmLogic.Text, "def anneal")
}

func TestSession_BuildTransformedWithoutResult(t *testing.T) {
	s := authoring.NewSession("solver.py", source, authoring.WithName("x"))
	_, err := s.BuildTransformed(context.Background())
	assert.ErrorIs(t, err, authoring.ErrNoTransform)
}

func TestSession_UnclosedFenceGivesIncompleteDescriptor(t *testing.T) {
	s := authoring.NewSession("solver.py", source, authoring.WithName("annealer"))

	_, err := s.Transform(context.Background(),
		backend.Static("# Transformed Code\n", "```python\n", "def energy(x):"))
	require.NoError(t, err)

	_, err = s.BuildTransformed(context.Background())
	require.Error(t, err)
	assert.True(t, descriptor.IsIncomplete(err))
	assert.Equal(t, []string{
		descriptor.FieldInputParameters, descriptor.FieldCostFunction, descriptor.FieldAlgorithmLogic,
	}, descriptor.MissingFields(err))
}

func TestSession_TransformErrors(t *testing.T) {
	s := authoring.NewSession("solver.py", source)

	failing := backend.Func(func(context.Context, backend.Request) (transform.DeltaStream, error) {
		return transform.NewSliceStream("# Analysis", "partial").FailAfter(errors.New("reset")), nil
	})
	_, err := s.Transform(context.Background(), failing)
	assert.ErrorIs(t, err, transform.ErrStreamTransport)
	_, ok := s.Result()
	assert.False(t, ok)

	refused := backend.Func(func(context.Context, backend.Request) (transform.DeltaStream, error) {
		return nil, errors.New("refused")
	})
	_, err = s.Transform(context.Background(), refused)
	assert.ErrorContains(t, err, "refused")
}

func TestSession_CancelledTransformNotKept(t *testing.T) {
	s := authoring.NewSession("solver.py", source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Transform(ctx, backend.Static(transformedAnswer(source)...))
	require.NoError(t, err)
	assert.True(t, result.Abandoned)

	_, ok := s.Result()
	assert.False(t, ok)
}

func TestSession_Rebase(t *testing.T) {
	s := authoring.NewSession("solver.py", source)
	_, err := s.MarkLines(selection.RoleCostFunction, 5, 6)
	require.NoError(t, err)
	_, err = s.MarkLines(selection.RoleInputParameters, 3, 3)
	require.NoError(t, err)

	changed := "# header comment\n" + source
	changed = changed[:len(changed)-len("    return energy(x)\n")] + "    return energy(x) * 2\n"
	_, err = s.MarkLines(selection.RoleAlgorithmLogic, 8, 10)
	require.NoError(t, err)

	dropped := s.Rebase(changed)
	assert.Equal(t, []selection.Role{selection.RoleAlgorithmLogic}, dropped)

	sel, ok := s.Selection(selection.RoleCostFunction)
	require.True(t, ok)
	assert.Equal(t, changed[sel.Start:sel.End], sel.Text)
	assert.Equal(t, changed, s.Buffer())
}

func TestSession_RebasePicksNearestOccurrence(t *testing.T) {
	buf := "x = 1\ny = 2\nx = 1\n"
	s := authoring.NewSession("p.py", buf)
	_, err := s.Mark(selection.RoleInputParameters, selection.Range{Start: 12, End: 17})
	require.NoError(t, err)

	s.Rebase("x = 1\ny = 22\nx = 1\n")

	sel, ok := s.Selection(selection.RoleInputParameters)
	require.True(t, ok)
	assert.Equal(t, 13, sel.Start)
	assert.Equal(t, 18, sel.End)
}
