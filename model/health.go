package model

import (
	"sync"
	"time"
)

// EndpointHealth tracks the health status of a model endpoint.
type EndpointHealth struct {
	// Available indicates if the endpoint is currently usable.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful request.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed request.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`

	// CircuitOpen indicates if the circuit breaker has tripped.
	CircuitOpen bool `json:"circuit_open"`

	// CircuitOpenedAt is when the circuit was opened.
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`

	// probes counts requests let through since the circuit went half-open.
	probes int
}

// HealthConfig configures the health tracking behavior.
type HealthConfig struct {
	// FailureThreshold is the number of failures before opening the circuit.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`

	// RecoveryTimeout is how long to wait before trying a failed endpoint again.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`

	// HalfOpenRequests is how many probe requests to allow once the timeout passes.
	// Zero means unlimited.
	HalfOpenRequests int `yaml:"half_open_requests" json:"half_open_requests"`
}

// DefaultHealthConfig returns sensible defaults for health tracking.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// healthState stores endpoint health information under its own lock so
// health updates never contend with registry configuration reads.
type healthState struct {
	mu       sync.Mutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
	now      func() time.Time
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
		now:      time.Now,
	}
}

// status returns the entry for name, creating it. Caller holds h.mu.
func (h *healthState) status(name string) *EndpointHealth {
	s, ok := h.statuses[name]
	if !ok {
		s = &EndpointHealth{Available: true}
		h.statuses[name] = s
	}
	return s
}

// MarkEndpointSuccess records a successful request and closes the circuit.
func (r *Registry) MarkEndpointSuccess(name string) {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.status(name)
	s.LastSuccess = h.now()
	s.FailureCount = 0
	s.Available = true
	s.CircuitOpen = false
	s.probes = 0
}

// MarkEndpointFailure records a failed request, opening the circuit once the
// failure threshold is reached. A failed half-open probe reopens it.
func (r *Registry) MarkEndpointFailure(name string) {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.status(name)
	s.LastFailure = h.now()
	s.FailureCount++

	if s.FailureCount >= h.config.FailureThreshold || s.CircuitOpen {
		s.CircuitOpen = true
		s.CircuitOpenedAt = h.now()
		s.Available = false
		s.probes = 0
	}
}

// IsEndpointAvailable reports whether a request may be sent to the endpoint.
// With the circuit open it returns false until the recovery timeout passes,
// then admits up to HalfOpenRequests probes.
func (r *Registry) IsEndpointAvailable(name string) bool {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.statuses[name]
	if !ok || !s.CircuitOpen {
		return true
	}
	if h.now().Sub(s.CircuitOpenedAt) <= h.config.RecoveryTimeout {
		return false
	}
	if h.config.HalfOpenRequests > 0 && s.probes >= h.config.HalfOpenRequests {
		return false
	}
	s.probes++
	return true
}

// GetEndpointHealth returns a copy of the health status for an endpoint,
// or nil if no request has been recorded.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	h := r.health
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.statuses[name]
	if !ok {
		return nil
	}
	c := *s
	return &c
}

// GetAvailableFallbackChain returns the fallback chain filtered to endpoints
// whose circuit is closed or past its recovery timeout. If every endpoint is
// unavailable the full chain is returned.
func (r *Registry) GetAvailableFallbackChain(c Capability) []string {
	chain := r.GetFallbackChain(c)

	h := r.health
	h.mu.Lock()
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		s, ok := h.statuses[name]
		if !ok || !s.CircuitOpen || h.now().Sub(s.CircuitOpenedAt) > h.config.RecoveryTimeout {
			available = append(available, name)
		}
	}
	h.mu.Unlock()

	if len(available) == 0 {
		return chain
	}
	return available
}

// SetHealthConfig updates the health tracking configuration.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.health.mu.Lock()
	defer r.health.mu.Unlock()
	r.health.config = cfg
}

// ResetEndpointHealth clears the health status for an endpoint.
func (r *Registry) ResetEndpointHealth(name string) {
	r.health.mu.Lock()
	defer r.health.mu.Unlock()
	delete(r.health.statuses, name)
}
