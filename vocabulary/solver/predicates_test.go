package solver

import (
	"strings"
	"testing"

	"github.com/c360studio/semstreams/vocabulary"
)

func TestPredicatesRegistered(t *testing.T) {
	predicates := []string{
		DescriptorName,
		DescriptorDescription,
		DescriptorInputParameters,
		DescriptorCostFunction,
		DescriptorAlgorithmLogic,
		DescriptorCreatedAt,
		DescriptorUpdatedAt,
		SourcePath,
		SourceHash,
		SourceOrigin,
		SourceRequest,
	}

	for _, pred := range predicates {
		t.Run(pred, func(t *testing.T) {
			meta := vocabulary.GetPredicateMetadata(pred)
			if meta == nil {
				t.Fatalf("predicate %s not registered", pred)
			}
			if meta.Description == "" {
				t.Errorf("predicate %s not registered or missing description", pred)
			}
		})
	}
}

func TestPredicateFormat(t *testing.T) {
	for _, pred := range []string{DescriptorName, DescriptorCostFunction, SourceOrigin} {
		parts := strings.Split(pred, ".")
		if len(parts) != 3 || parts[0] != "solver" {
			t.Errorf("predicate %q should be solver.<category>.<property>", pred)
		}
	}
}

func TestPredicateIRIs(t *testing.T) {
	tests := []struct {
		predicate   string
		expectedIRI string
	}{
		{DescriptorName, DcTitle},
		{DescriptorDescription, DcDescription},
		{DescriptorCreatedAt, DcCreated},
		{DescriptorUpdatedAt, DcModified},
		{DescriptorCostFunction, Namespace + "costFunction"},
		{SourceOrigin, Namespace + "origin"},
	}

	for _, tt := range tests {
		t.Run(tt.predicate, func(t *testing.T) {
			meta := vocabulary.GetPredicateMetadata(tt.predicate)
			if meta == nil {
				t.Fatalf("predicate %s not registered", tt.predicate)
			}
			if meta.StandardIRI != tt.expectedIRI {
				t.Errorf("predicate %s: expected IRI %s, got %s", tt.predicate, tt.expectedIRI, meta.StandardIRI)
			}
		})
	}
}
