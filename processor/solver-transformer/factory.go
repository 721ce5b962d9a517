package solvertransformer

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface needed for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the solver-transformer component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewComponent,
		Schema:      solverTransformerSchema,
		Type:        "processor",
		Protocol:    "solver",
		Domain:      "semsolver",
		Description: "Restructures solver code through a transform backend and stores the resulting descriptor",
		Version:     "0.1.0",
	})
}
