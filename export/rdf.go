// Package export serializes solver descriptor entities as RDF.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semstreams/vocabulary"

	"github.com/c360studio/semsolver/graph"
	"github.com/c360studio/semsolver/vocabulary/solver"
)

const (
	rdfType    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	xsdDate    = "http://www.w3.org/2001/XMLSchema#dateTime"
	xsdPrefix  = "http://www.w3.org/2001/XMLSchema#"
	dcPrefix   = "http://purl.org/dc/terms/"
	rdfPrefix  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	entityPart = ".descriptor.descriptor."
)

// RDFExporter collects graph entities and serializes them.
type RDFExporter struct {
	entities []*graph.EntityPayload
	prefixes map[string]string
}

// NewRDFExporter creates an exporter with the standard prefixes.
func NewRDFExporter() *RDFExporter {
	return &RDFExporter{
		prefixes: map[string]string{
			"rdf":    rdfPrefix,
			"xsd":    xsdPrefix,
			"dc":     dcPrefix,
			"solver": solver.Namespace,
			"entity": solver.EntityNamespace,
		},
	}
}

// AddEntity adds an entity to be exported.
func (e *RDFExporter) AddEntity(entity *graph.EntityPayload) {
	e.entities = append(e.entities, entity)
}

// Export serializes all entities to format.
func (e *RDFExporter) Export(format Format) (string, error) {
	switch format {
	case FormatTurtle:
		return e.toTurtle(), nil
	case FormatNTriples:
		return e.toNTriples(), nil
	case FormatJSONLD:
		return e.toJSONLD()
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func (e *RDFExporter) toTurtle() string {
	var sb strings.Builder

	keys := make([]string, 0, len(e.prefixes))
	for k := range e.prefixes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, prefix := range keys {
		fmt.Fprintf(&sb, "@prefix %s: <%s> .\n", prefix, e.prefixes[prefix])
	}
	sb.WriteString("\n")

	for _, entity := range e.entities {
		fmt.Fprintf(&sb, "<%s>\n", EntityIRI(entity.EntityID()))
		fmt.Fprintf(&sb, "    a <%s>", solver.ClassDescriptor)
		for _, t := range entity.Triples() {
			fmt.Fprintf(&sb, " ;\n    <%s> %s", PredicateIRI(t.Predicate), literal(t.Object, "xsd:dateTime"))
		}
		sb.WriteString(" .\n\n")
	}
	return sb.String()
}

func (e *RDFExporter) toNTriples() string {
	var sb strings.Builder
	for _, entity := range e.entities {
		iri := EntityIRI(entity.EntityID())
		fmt.Fprintf(&sb, "<%s> <%s> <%s> .\n", iri, rdfType, solver.ClassDescriptor)
		for _, t := range entity.Triples() {
			fmt.Fprintf(&sb, "<%s> <%s> %s .\n", iri, PredicateIRI(t.Predicate), literal(t.Object, "<"+xsdDate+">"))
		}
	}
	return sb.String()
}

func (e *RDFExporter) toJSONLD() (string, error) {
	nodes := make([]map[string]any, 0, len(e.entities))
	for _, entity := range e.entities {
		node := map[string]any{
			"@id":   EntityIRI(entity.EntityID()),
			"@type": []string{solver.ClassDescriptor},
		}
		for _, t := range entity.Triples() {
			node[PredicateIRI(t.Predicate)] = jsonLDValue(t.Object)
		}
		nodes = append(nodes, node)
	}

	data, err := json.MarshalIndent(map[string]any{
		"@context": e.prefixes,
		"@graph":   nodes,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode json-ld: %w", err)
	}
	return string(data) + "\n", nil
}

// PredicateIRI maps a dotted predicate to its registered standard IRI, or to
// the solver namespace when none is registered.
func PredicateIRI(predicate string) string {
	if meta := vocabulary.GetPredicateMetadata(predicate); meta != nil && meta.StandardIRI != "" {
		return meta.StandardIRI
	}
	return solver.Namespace + predicate
}

// EntityIRI converts a descriptor entity ID to an IRI.
// Example: "semsolver.local.solver.descriptor.descriptor.d-1"
//
//	-> "https://semsolver.dev/entity/solver/descriptor/d-1"
func EntityIRI(entityID string) string {
	if _, id, ok := strings.Cut(entityID, entityPart); ok {
		return solver.EntityNamespace + "descriptor/" + id
	}
	return solver.EntityNamespace + entityID
}

// literal formats an object for Turtle or N-Triples. dateType is the
// datatype token for RFC3339 strings in the target syntax.
func literal(obj any, dateType string) string {
	switch v := obj.(type) {
	case string:
		if strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") {
			return fmt.Sprintf("<%s>", v)
		}
		if _, err := time.Parse(time.RFC3339, v); err == nil {
			return fmt.Sprintf("\"%s\"^^%s", v, dateType)
		}
		return fmt.Sprintf("\"%s\"", escapeString(v))
	case bool:
		return fmt.Sprintf("\"%t\"", v)
	default:
		return fmt.Sprintf("\"%s\"", escapeString(fmt.Sprint(v)))
	}
}

func jsonLDValue(obj any) any {
	s, ok := obj.(string)
	if !ok {
		return obj
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return map[string]string{"@id": s}
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return map[string]string{"@value": s, "@type": xsdDate}
	}
	return s
}

// escapeString escapes special characters in strings for RDF serialization.
func escapeString(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return s
}
