package export_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semsolver/descriptor"
	"github.com/c360studio/semsolver/export"
	"github.com/c360studio/semsolver/graph"
	"github.com/c360studio/semsolver/storage"
	"github.com/c360studio/semsolver/vocabulary/solver"
)

func testExporter(t *testing.T) *export.RDFExporter {
	t.Helper()
	created := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := &storage.Record{
		ID: "d-1",
		Descriptor: descriptor.SolverDescriptor{
			Name:            "maxcut",
			Description:     `Max-cut on "G(n,p)"`,
			InputParameters: descriptor.Region{Text: "N = 12\nP = 0.5"},
			CostFunction:    descriptor.Region{Text: "def cost(x):\n\treturn 0"},
			AlgorithmLogic:  descriptor.Region{Text: "def solve():\n    pass"},
		},
		Source:    storage.Provenance{Path: "maxcut.py", Origin: storage.OriginManual},
		CreatedAt: created,
		UpdatedAt: created,
	}
	e := export.NewRDFExporter()
	e.AddEntity(graph.DescriptorEntity(rec, "test", created))
	return e
}

func TestExport_Turtle(t *testing.T) {
	out, err := testExporter(t).Export(export.FormatTurtle)
	require.NoError(t, err)

	assert.Contains(t, out, "@prefix solver: <"+solver.Namespace+"> .")
	assert.Contains(t, out, "<https://semsolver.dev/entity/solver/descriptor/d-1>")
	assert.Contains(t, out, "a <"+solver.ClassDescriptor+">")
	assert.Contains(t, out, `<http://purl.org/dc/terms/title> "maxcut"`)
	assert.Contains(t, out, `"Max-cut on \"G(n,p)\""`)
	assert.Contains(t, out, `"N = 12\nP = 0.5"`)
	assert.Contains(t, out, `"def cost(x):\n\treturn 0"`)
	assert.Contains(t, out, `"2026-05-01T09:00:00Z"^^xsd:dateTime`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), " ."))
}

func TestExport_NTriples(t *testing.T) {
	out, err := testExporter(t).Export(export.FormatNTriples)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "<https://semsolver.dev/entity/solver/descriptor/d-1> "), line)
		assert.True(t, strings.HasSuffix(line, " ."), line)
	}
	assert.Contains(t, out, "<"+solver.Namespace+"costFunction>")
	assert.Contains(t, out, "^^<http://www.w3.org/2001/XMLSchema#dateTime>")
}

func TestExport_JSONLD(t *testing.T) {
	out, err := testExporter(t).Export(export.FormatJSONLD)
	require.NoError(t, err)

	var doc struct {
		Context map[string]string `json:"@context"`
		Graph   []map[string]any  `json:"@graph"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, solver.Namespace, doc.Context["solver"])
	require.Len(t, doc.Graph, 1)

	node := doc.Graph[0]
	assert.Equal(t, "https://semsolver.dev/entity/solver/descriptor/d-1", node["@id"])
	assert.Equal(t, "N = 12\nP = 0.5", node[solver.Namespace+"inputParameters"])
	created, ok := node["http://purl.org/dc/terms/created"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2026-05-01T09:00:00Z", created["@value"])
}

func TestExport_UnsupportedFormat(t *testing.T) {
	_, err := testExporter(t).Export("rdfxml")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    export.Format
		wantErr bool
	}{
		{in: "turtle", want: export.FormatTurtle},
		{in: "TTL", want: export.FormatTurtle},
		{in: ".nt", want: export.FormatNTriples},
		{in: "jsonld", want: export.FormatJSONLD},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := export.ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntityIRI(t *testing.T) {
	assert.Equal(t, "https://semsolver.dev/entity/solver/descriptor/abc",
		export.EntityIRI(graph.DescriptorEntityID("abc")))
	assert.Equal(t, "https://semsolver.dev/entity/solver/other", export.EntityIRI("other"))
}

func TestPredicateIRI(t *testing.T) {
	assert.Equal(t, solver.DcTitle, export.PredicateIRI(solver.DescriptorName))
	assert.Equal(t, solver.Namespace+"x.y.z", export.PredicateIRI("x.y.z"))
}
