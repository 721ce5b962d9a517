// Package graph publishes stored solver descriptors to the knowledge graph.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/semsolver/storage"
	"github.com/c360studio/semsolver/vocabulary/solver"
)

// IngestSubject is the graph ingestion subject.
const IngestSubject = "graph.ingest.entity"

// Publisher is the part of natsclient.Client used to publish entities.
type Publisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// DescriptorEntityID generates a consistent entity ID for a stored descriptor.
// Format: semsolver.local.solver.descriptor.descriptor.<id>
func DescriptorEntityID(id string) string {
	return fmt.Sprintf("semsolver.local.solver.descriptor.descriptor.%s", id)
}

// DescriptorEntity converts a stored record into a graph entity. Provenance
// predicates are only emitted when the record carries them.
func DescriptorEntity(rec *storage.Record, source string, now time.Time) *EntityPayload {
	entityID := DescriptorEntityID(rec.ID)
	d := rec.Descriptor

	triple := func(predicate string, object any) message.Triple {
		return message.Triple{
			Subject:    entityID,
			Predicate:  predicate,
			Object:     object,
			Source:     source,
			Timestamp:  now,
			Confidence: 1.0,
		}
	}

	triples := []message.Triple{
		triple(solver.DescriptorName, d.Name),
		triple(solver.DescriptorInputParameters, d.InputParameters.Text),
		triple(solver.DescriptorCostFunction, d.CostFunction.Text),
		triple(solver.DescriptorAlgorithmLogic, d.AlgorithmLogic.Text),
		triple(solver.DescriptorCreatedAt, rec.CreatedAt.Format(time.RFC3339)),
		triple(solver.DescriptorUpdatedAt, rec.UpdatedAt.Format(time.RFC3339)),
	}
	if d.Description != "" {
		triples = append(triples, triple(solver.DescriptorDescription, d.Description))
	}

	for _, opt := range []struct {
		predicate string
		value     string
	}{
		{solver.SourcePath, rec.Source.Path},
		{solver.SourceHash, rec.Source.Hash},
		{solver.SourceOrigin, string(rec.Source.Origin)},
		{solver.SourceRequest, rec.Source.RequestID},
	} {
		if opt.value != "" {
			triples = append(triples, triple(opt.predicate, opt.value))
		}
	}

	return &EntityPayload{
		EntityID_:  entityID,
		TripleData: triples,
		UpdatedAt:  now,
	}
}

// PublishDescriptor publishes rec as a graph entity. A nil publisher skips
// publishing.
func PublishDescriptor(ctx context.Context, p Publisher, rec *storage.Record, source string) error {
	if p == nil {
		return nil
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("publish descriptor entity: record has no id")
	}

	entity := DescriptorEntity(rec, source, time.Now())
	msg := message.NewBaseMessage(EntityType, entity, source)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal descriptor entity: %w", err)
	}

	if err := p.PublishToStream(ctx, IngestSubject, data); err != nil {
		return fmt.Errorf("publish descriptor entity: %w", err)
	}
	return nil
}
