// Package config provides configuration loading and management for semsolver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/semsolver/backend"
	"github.com/c360studio/semsolver/model"
	"github.com/c360studio/semsolver/transform"
)

// Store kinds.
const (
	StoreSQLite = "sqlite"
	StoreKV     = "kv"
)

// Config represents the complete semsolver configuration
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Backend   BackendConfig   `yaml:"backend"`
	Transform TransformConfig `yaml:"transform"`
	Store     StoreConfig     `yaml:"store"`
	NATS      NATSConfig      `yaml:"nats"`
	Source    SourceConfig    `yaml:"source"`
}

// ModelConfig configures the chat model used by the llm backend
type ModelConfig struct {
	// Registry is a JSON model registry file (empty = built-in registry)
	Registry string `yaml:"registry"`
	// Capability selects the model chain (default: transform)
	Capability string `yaml:"capability"`
	// Temperature controls randomness (0.0-1.0, default: 0.2)
	Temperature float64 `yaml:"temperature"`
	// MaxTokens limits the answer length (0 = provider default)
	MaxTokens int `yaml:"max_tokens"`
	// Buffered requests one non-streaming completion instead of a stream
	Buffered bool `yaml:"buffered"`
}

// BackendConfig selects where transform requests go
type BackendConfig struct {
	// Kind is "llm" (chat model via the registry) or "http" (transform service)
	Kind string `yaml:"kind"`
	// URL is the transform service endpoint for kind "http"
	URL string `yaml:"url"`
	// Headers are sent with every request to the transform service
	Headers map[string]string `yaml:"headers"`
	// Timeout bounds a whole transform, stream included
	Timeout time.Duration `yaml:"timeout"`
}

// TransformConfig tunes how answers are consumed
type TransformConfig struct {
	// FlushUnclosed keeps code from a fence that never closed
	FlushUnclosed bool `yaml:"flush_unclosed"`
	// AtomicMarkers assumes every marker arrives in one delta and skips buffering
	AtomicMarkers bool `yaml:"atomic_markers"`
}

// StoreConfig configures descriptor persistence
type StoreConfig struct {
	// Kind is "sqlite" (local file) or "kv" (NATS JetStream bucket)
	Kind string `yaml:"kind"`
	// Path is the sqlite database file
	Path string `yaml:"path"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
}

// SourceConfig configures reading solver sources and descriptions
type SourceConfig struct {
	// Root confines local reads (empty = current directory)
	Root string `yaml:"root"`
	// MaxSize caps bytes read per file or page
	MaxSize int64 `yaml:"max_size"`
	// Pattern selects solver files for listing
	Pattern string `yaml:"pattern"`
	// Debounce is the quiet period before a watched change is reported
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Capability:  model.CapabilityTransform.String(),
			Temperature: 0.2,
		},
		Backend: BackendConfig{
			Kind:    string(backend.KindLLM),
			Timeout: 5 * time.Minute,
		},
		Store: StoreConfig{
			Kind: StoreSQLite,
			Path: defaultStorePath(),
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Source: SourceConfig{
			MaxSize:  4 << 20,
			Pattern:  "**/*.py",
			Debounce: 300 * time.Millisecond,
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "semsolver.db"
	}
	return filepath.Join(home, ".semsolver", "descriptors.db")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	kind, err := backend.ParseKind(c.Backend.Kind)
	if err != nil {
		return fmt.Errorf("backend.kind: %w", err)
	}
	if kind == backend.KindHTTP && c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required for the http backend")
	}
	if !model.ParseCapability(c.Model.Capability).IsValid() {
		return fmt.Errorf("model.capability %q is not a known capability", c.Model.Capability)
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	if c.Model.MaxTokens < 0 {
		return fmt.Errorf("model.max_tokens must not be negative")
	}
	switch c.Store.Kind {
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite store")
		}
	case StoreKV:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the kv store")
		}
	default:
		return fmt.Errorf("store.kind must be %q or %q, got %q", StoreSQLite, StoreKV, c.Store.Kind)
	}
	if c.Source.MaxSize <= 0 {
		return fmt.Errorf("source.max_size must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Registry != "" {
		c.Model.Registry = other.Model.Registry
	}
	if other.Model.Capability != "" {
		c.Model.Capability = other.Model.Capability
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.MaxTokens != 0 {
		c.Model.MaxTokens = other.Model.MaxTokens
	}
	if other.Model.Buffered {
		c.Model.Buffered = true
	}

	// Backend
	if other.Backend.Kind != "" {
		c.Backend.Kind = other.Backend.Kind
	}
	if other.Backend.URL != "" {
		c.Backend.URL = other.Backend.URL
	}
	if len(other.Backend.Headers) > 0 {
		if c.Backend.Headers == nil {
			c.Backend.Headers = make(map[string]string, len(other.Backend.Headers))
		}
		for k, v := range other.Backend.Headers {
			c.Backend.Headers[k] = v
		}
	}
	if other.Backend.Timeout != 0 {
		c.Backend.Timeout = other.Backend.Timeout
	}

	// Transform
	if other.Transform.FlushUnclosed {
		c.Transform.FlushUnclosed = true
	}
	if other.Transform.AtomicMarkers {
		c.Transform.AtomicMarkers = true
	}

	// Store
	if other.Store.Kind != "" {
		c.Store.Kind = other.Store.Kind
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}

	// NATS
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}

	// Source
	if other.Source.Root != "" {
		c.Source.Root = other.Source.Root
	}
	if other.Source.MaxSize != 0 {
		c.Source.MaxSize = other.Source.MaxSize
	}
	if other.Source.Pattern != "" {
		c.Source.Pattern = other.Source.Pattern
	}
	if other.Source.Debounce != 0 {
		c.Source.Debounce = other.Source.Debounce
	}
}

// ApplyEnv overrides settings from the environment. getenv is os.Getenv
// outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if url := getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
	}
	if url := getenv("SEMSOLVER_NATS_URL"); url != "" {
		c.NATS.URL = url
	}
	if url := getenv("SEMSOLVER_BACKEND_URL"); url != "" {
		c.Backend.URL = url
		c.Backend.Kind = string(backend.KindHTTP)
	}
	if kind := getenv("SEMSOLVER_STORE"); kind != "" {
		c.Store.Kind = kind
	}
	if registry := getenv("SEMSOLVER_MODELS"); registry != "" {
		c.Model.Registry = registry
	}
}

// ModelRegistry loads the configured model registry, or the built-in one.
func (c *Config) ModelRegistry() (*model.Registry, error) {
	if c.Model.Registry == "" {
		return model.NewDefaultRegistry(), nil
	}
	reg, err := model.LoadFromFile(c.Model.Registry)
	if err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("model registry %s: %w", c.Model.Registry, err)
	}
	return reg, nil
}

// ConsumeOptions returns the transform options implied by the config.
func (c *Config) ConsumeOptions() []transform.ConsumeOption {
	var opts []transform.ConsumeOption
	if c.Transform.FlushUnclosed {
		opts = append(opts, transform.WithFencePolicy(transform.FlushUnclosedFence))
	}
	if c.Transform.AtomicMarkers {
		opts = append(opts, transform.WithAtomicMarkers())
	}
	return opts
}
