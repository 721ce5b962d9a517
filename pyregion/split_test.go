package pyregion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/selection"
)

const annealer = `"""Simulated annealing for max-cut."""
import random

import numpy as np

# problem size
N = 8
T0 = 10.0


def cost(graph, cut):
    return -sum(w for (u, v), w in graph.items() if cut[u] != cut[v])


def anneal(graph, steps=1000):
    cut = [random.randint(0, 1) for _ in range(N)]
    best = cost(graph, cut)
    return cut, best


if __name__ == "__main__":
    print(anneal({}))
`

func TestSplit_ClassifiesTopLevelStatements(t *testing.T) {
	regions, err := Split(context.Background(), annealer)
	require.NoError(t, err)

	require.NotNil(t, regions.InputParameters)
	assert.Equal(t, "import random\n\nimport numpy as np\n\n# problem size\nN = 8\nT0 = 10.0", regions.InputParameters.Text)
	assert.Equal(t, strings.Index(annealer, "import random"), regions.InputParameters.Start)

	require.NotNil(t, regions.CostFunction)
	assert.True(t, strings.HasPrefix(regions.CostFunction.Text, "def cost(graph, cut):"))
	assert.Equal(t, regions.CostFunction.Text, annealer[regions.CostFunction.Start:regions.CostFunction.End])

	require.NotNil(t, regions.AlgorithmLogic)
	assert.True(t, strings.HasPrefix(regions.AlgorithmLogic.Text, "def anneal("))
	assert.Contains(t, regions.AlgorithmLogic.Text, `if __name__ == "__main__":`)

	d, err := descriptor.Build("max-cut", "", regions)
	require.NoError(t, err)
	assert.Equal(t, "max-cut", d.Name)
}

func TestSplit_SeparateSpansJoined(t *testing.T) {
	code := "def load_params():\n    return {}\n\ndef solve():\n    pass\n\nSEED = 3\n"

	regions, err := Split(context.Background(), code)
	require.NoError(t, err)

	require.NotNil(t, regions.InputParameters)
	assert.Equal(t, "def load_params():\n    return {}\n\nSEED = 3", regions.InputParameters.Text)
	assert.Equal(t, 0, regions.InputParameters.Start)
	assert.Equal(t, len(code)-1, regions.InputParameters.End)
	assert.Contains(t, code[regions.InputParameters.Start:regions.InputParameters.End], "def solve")
	assert.NotContains(t, regions.InputParameters.Text, "def solve")
	assert.Nil(t, regions.CostFunction)
}

func TestAssemble(t *testing.T) {
	code := "N = 4\ndef run():\n    pass\nM = 2\ndef energy(x):\n    return x\n"
	at := func(s string) (int, int) {
		i := strings.Index(code, s)
		return i, i + len(s)
	}
	block := func(role selection.Role, s string) Block {
		start, end := at(s)
		return Block{Role: role, Start: start, End: end}
	}

	regions := Assemble(code, []Block{
		block(selection.RoleInputParameters, "N = 4"),
		block(selection.RoleAlgorithmLogic, "def run():\n    pass"),
		block(selection.RoleInputParameters, "M = 2"),
		block(selection.RoleCostFunction, "def energy(x):\n    return x"),
	})

	t.Run("split role joins its spans", func(t *testing.T) {
		r := regions.InputParameters
		require.NotNil(t, r)
		assert.Equal(t, "N = 4\n\nM = 2", r.Text)
		assert.Equal(t, 0, r.Start)
		_, end := at("M = 2")
		assert.Equal(t, end, r.End)
	})

	t.Run("single span is the code slice", func(t *testing.T) {
		for _, r := range []*descriptor.Region{regions.AlgorithmLogic, regions.CostFunction} {
			require.NotNil(t, r)
			assert.Equal(t, code[r.Start:r.End], r.Text)
		}
	})

	t.Run("adjacent blocks merge", func(t *testing.T) {
		merged := Assemble(code, []Block{
			block(selection.RoleInputParameters, "N = 4"),
			block(selection.RoleInputParameters, "def run():\n    pass"),
		})
		require.NotNil(t, merged.InputParameters)
		assert.Equal(t, "N = 4\ndef run():\n    pass", merged.InputParameters.Text)
		assert.Nil(t, merged.CostFunction)
	})
}

func TestSplit_MissingCostFunctionReported(t *testing.T) {
	regions, err := Split(context.Background(), "x = 1\n\ndef run():\n    return x\n")
	require.NoError(t, err)
	assert.Nil(t, regions.CostFunction)

	_, err = descriptor.Build("s", "", regions)
	assert.Equal(t, []string{descriptor.FieldCostFunction}, descriptor.MissingFields(err))
}

func TestSplit_EmptyCode(t *testing.T) {
	_, err := Split(context.Background(), "  \n")
	assert.ErrorIs(t, err, ErrNoCode)
}

func TestBlocks(t *testing.T) {
	s := NewSplitter()
	code := "@cache\ndef qubo_matrix(n):\n    return n\n\nclass Solver:\n    pass\n\nresult = Solver()\nLIMIT = 5\n"

	blocks, err := s.Blocks(context.Background(), code)
	require.NoError(t, err)
	require.Len(t, blocks, 4)

	assert.Equal(t, selection.RoleCostFunction, blocks[0].Role)
	assert.Equal(t, "qubo_matrix", blocks[0].Name)
	assert.Equal(t, "decorated_definition", blocks[0].Kind)

	assert.Equal(t, selection.RoleAlgorithmLogic, blocks[1].Role)
	assert.Equal(t, "Solver", blocks[1].Name)
	assert.Equal(t, 5, blocks[1].Line)

	assert.Equal(t, selection.RoleAlgorithmLogic, blocks[2].Role)
	assert.Equal(t, selection.RoleInputParameters, blocks[3].Role)
	assert.Equal(t, "LIMIT", blocks[3].Name)
}

func TestRoleForName(t *testing.T) {
	tests := map[string]selection.Role{
		"total_cost":       selection.RoleCostFunction,
		"ObjectiveFn":      selection.RoleCostFunction,
		"build_qubo":       selection.RoleCostFunction,
		"default_params":   selection.RoleInputParameters,
		"read_instance":    selection.RoleInputParameters,
		"simulated_anneal": selection.RoleAlgorithmLogic,
		"main":             selection.RoleAlgorithmLogic,
	}
	for name, want := range tests {
		assert.Equal(t, want, roleForName(name), name)
	}
}
