package solvertransformer

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/model"
)

// solverTransformerSchema defines the configuration schema.
var solverTransformerSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the solver-transformer component.
type Config struct {
	// StreamName is the JetStream stream carrying transform requests.
	StreamName string `json:"stream_name" schema:"type:string,description:JetStream stream for transform requests,category:basic,default:SOLVER"`

	// ConsumerName is the durable consumer name for request consumption.
	ConsumerName string `json:"consumer_name" schema:"type:string,description:Durable consumer name for request consumption,category:basic,default:solver-transformer"`

	// TriggerSubject is the subject transform requests arrive on.
	TriggerSubject string `json:"trigger_subject" schema:"type:string,description:Subject for transform requests,category:basic,default:solver.transform.request"`

	// ResultSubjectPrefix is prepended to the request id when publishing results.
	ResultSubjectPrefix string `json:"result_subject_prefix" schema:"type:string,description:Subject prefix for transform results,category:basic,default:solver.transform.result"`

	// Backend selects the transform backend: llm or http.
	Backend string `json:"backend" schema:"type:string,description:Transform backend (llm or http),category:basic,default:llm"`

	// BackendURL is the transform service endpoint for the http backend.
	BackendURL string `json:"backend_url,omitempty" schema:"type:string,description:Transform service URL for the http backend,category:advanced"`

	// Capability is the model capability used by the llm backend.
	Capability string `json:"capability" schema:"type:string,description:Model capability for the llm backend,category:advanced,default:transform"`

	// ModelRegistry is a JSON model registry file. Empty uses the built-in registry.
	ModelRegistry string `json:"model_registry,omitempty" schema:"type:string,description:Model registry JSON file,category:advanced"`

	// FlushUnclosed keeps code from a fence that never closed.
	FlushUnclosed bool `json:"flush_unclosed" schema:"type:bool,description:Keep code from an unclosed fence,category:advanced,default:false"`

	// AtomicMarkers skips marker buffering for backends that never split a marker.
	AtomicMarkers bool `json:"atomic_markers" schema:"type:bool,description:Assume markers arrive whole,category:advanced,default:false"`

	// DryRun publishes results without saving descriptors.
	DryRun bool `json:"dry_run" schema:"type:bool,description:Publish results without saving descriptors,category:advanced,default:false"`

	// Timeout bounds one transform, stream included.
	// PublishGraph publishes each stored descriptor to graph.ingest.entity.
	PublishGraph bool `json:"publish_graph" schema:"type:bool,description:Publish stored descriptors to the knowledge graph,category:advanced,default:false"`

	Timeout string `json:"timeout" schema:"type:string,description:Timeout for one transform,category:advanced,default:5m"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Input/output port definitions,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:          "SOLVER",
		ConsumerName:        "solver-transformer",
		TriggerSubject:      "solver.transform.request",
		ResultSubjectPrefix: "solver.transform.result",
		Backend:             string(backend.KindLLM),
		Capability:          model.CapabilityTransform.String(),
		Timeout:             "5m",
		Ports: &component.PortConfig{
			Inputs: []component.PortDefinition{
				{
					Name:        "transform-requests",
					Type:        "jetstream",
					Subject:     "solver.transform.request",
					StreamName:  "SOLVER",
					Description: "Receive solver transform requests",
					Required:    true,
				},
			},
			Outputs: []component.PortDefinition{
				{
					Name:        "transform-results",
					Type:        "nats",
					Subject:     "solver.transform.result.>",
					Description: "Publish parsed sections and descriptor ids",
					Required:    false,
				},
				{
					Name:        "descriptor-entities",
					Type:        "jetstream",
					Subject:     "graph.ingest.entity",
					Description: "Stored descriptors as graph entities (publish_graph)",
					Required:    false,
				},
			},
		},
	}
}

// applyDefaults fills empty fields from DefaultConfig.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.StreamName == "" {
		c.StreamName = defaults.StreamName
	}
	if c.ConsumerName == "" {
		c.ConsumerName = defaults.ConsumerName
	}
	if c.TriggerSubject == "" {
		c.TriggerSubject = defaults.TriggerSubject
	}
	if c.ResultSubjectPrefix == "" {
		c.ResultSubjectPrefix = defaults.ResultSubjectPrefix
	}
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if c.Capability == "" {
		c.Capability = defaults.Capability
	}
	if c.Timeout == "" {
		c.Timeout = defaults.Timeout
	}
	if c.Ports == nil {
		c.Ports = defaults.Ports
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.StreamName == "" {
		return fmt.Errorf("stream_name is required")
	}
	if c.ConsumerName == "" {
		return fmt.Errorf("consumer_name is required")
	}
	if c.TriggerSubject == "" {
		return fmt.Errorf("trigger_subject is required")
	}
	if c.ResultSubjectPrefix == "" {
		return fmt.Errorf("result_subject_prefix is required")
	}
	kind, err := backend.ParseKind(c.Backend)
	if err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	if kind == backend.KindHTTP && c.BackendURL == "" {
		return fmt.Errorf("backend_url is required for the http backend")
	}
	if !model.ParseCapability(c.Capability).IsValid() {
		return fmt.Errorf("capability %q is not a known capability", c.Capability)
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
	}
	return nil
}

// GetTimeout parses the transform timeout.
func (c *Config) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
