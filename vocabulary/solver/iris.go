package solver

// Namespace is the base IRI prefix for solver vocabulary terms.
const Namespace = "https://semsolver.dev/ontology/solver/"

// EntityNamespace is the base IRI for solver entity instances.
const EntityNamespace = "https://semsolver.dev/entity/solver/"

// Standard ontology IRIs used in mappings.
const (
	// DcCreated is the Dublin Core created property.
	DcCreated = "http://purl.org/dc/terms/created"

	// DcModified is the Dublin Core modified property.
	DcModified = "http://purl.org/dc/terms/modified"

	// DcTitle is the Dublin Core title property.
	DcTitle = "http://purl.org/dc/terms/title"

	// DcDescription is the Dublin Core description property.
	DcDescription = "http://purl.org/dc/terms/description"
)

// ClassDescriptor is the class of solver descriptor entities.
const ClassDescriptor = Namespace + "SolverDescriptor"
