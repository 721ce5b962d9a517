package solver

import "github.com/c360studio/semstreams/vocabulary"

// Descriptor predicates.
const (
	// DescriptorName is the solver name.
	DescriptorName = "solver.descriptor.name"

	// DescriptorDescription is the problem description.
	DescriptorDescription = "solver.descriptor.description"

	// DescriptorInputParameters is the input-parameters region text.
	DescriptorInputParameters = "solver.descriptor.input_parameters"

	// DescriptorCostFunction is the cost-function region text.
	DescriptorCostFunction = "solver.descriptor.cost_function"

	// DescriptorAlgorithmLogic is the algorithm-logic region text.
	DescriptorAlgorithmLogic = "solver.descriptor.algorithm_logic"

	// DescriptorCreatedAt is the RFC3339 creation timestamp.
	DescriptorCreatedAt = "solver.descriptor.created_at"

	// DescriptorUpdatedAt is the RFC3339 last update timestamp.
	DescriptorUpdatedAt = "solver.descriptor.updated_at"
)

// Provenance predicates.
const (
	// SourcePath is the solver file the descriptor was built from.
	SourcePath = "solver.source.path"

	// SourceHash is the content hash of that file, for staleness detection.
	SourceHash = "solver.source.hash"

	// SourceOrigin is how the regions were obtained.
	// Values: manual, transformed
	SourceOrigin = "solver.source.origin"

	// SourceRequest is the transform request that produced the descriptor.
	SourceRequest = "solver.source.request"
)

func init() {
	vocabulary.Register(DescriptorName,
		vocabulary.WithDescription("Solver name"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(DcTitle))

	vocabulary.Register(DescriptorDescription,
		vocabulary.WithDescription("Problem the solver addresses"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(DcDescription))

	vocabulary.Register(DescriptorInputParameters,
		vocabulary.WithDescription("Code declaring the solver's input parameters"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"inputParameters"))

	vocabulary.Register(DescriptorCostFunction,
		vocabulary.WithDescription("Code computing the objective the solver optimizes"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"costFunction"))

	vocabulary.Register(DescriptorAlgorithmLogic,
		vocabulary.WithDescription("Code implementing the search or optimization procedure"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"algorithmLogic"))

	vocabulary.Register(DescriptorCreatedAt,
		vocabulary.WithDescription("Creation timestamp (RFC3339)"),
		vocabulary.WithDataType("datetime"),
		vocabulary.WithIRI(DcCreated))

	vocabulary.Register(DescriptorUpdatedAt,
		vocabulary.WithDescription("Last update timestamp (RFC3339)"),
		vocabulary.WithDataType("datetime"),
		vocabulary.WithIRI(DcModified))

	vocabulary.Register(SourcePath,
		vocabulary.WithDescription("Path or URL of the solver source"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"sourcePath"))

	vocabulary.Register(SourceHash,
		vocabulary.WithDescription("Content hash of the solver source"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"sourceHash"))

	vocabulary.Register(SourceOrigin,
		vocabulary.WithDescription("How the regions were obtained: manual or transformed"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"origin"))

	vocabulary.Register(SourceRequest,
		vocabulary.WithDescription("Transform request that produced the descriptor"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"request"))
}
