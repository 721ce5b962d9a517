package model

import (
	"testing"
	"time"
)

// fakeClock lets tests move health time forward without sleeping.
func fakeClock(r *Registry) *time.Time {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.health.now = func() time.Time { return now }
	return &now
}

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available initially")
	}
	if r.GetEndpointHealth("qwen") != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("qwen")

	health := r.GetEndpointHealth("qwen")
	if health == nil {
		t.Fatal("expected health info after success")
	}
	if !health.Available || health.FailureCount != 0 || health.LastSuccess.IsZero() {
		t.Errorf("unexpected health after success: %+v", health)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	r.MarkEndpointFailure("qwen")
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available after 1 failure")
	}

	r.MarkEndpointFailure("qwen")
	if r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be unavailable after circuit opens")
	}

	health := r.GetEndpointHealth("qwen")
	if !health.CircuitOpen || health.FailureCount != 2 {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestCircuitBreakerHalfOpen(t *testing.T) {
	r := NewDefaultRegistry()
	now := fakeClock(r)
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: 30 * time.Second, HalfOpenRequests: 1})

	r.MarkEndpointFailure("qwen")
	if r.IsEndpointAvailable("qwen") {
		t.Fatal("expected qwen to be unavailable immediately after failure")
	}

	*now = now.Add(31 * time.Second)
	if !r.IsEndpointAvailable("qwen") {
		t.Fatal("expected one probe after recovery timeout")
	}
	if r.IsEndpointAvailable("qwen") {
		t.Fatal("expected second probe to be refused")
	}

	// A failed probe reopens the circuit with a fresh timeout.
	r.MarkEndpointFailure("qwen")
	*now = now.Add(10 * time.Second)
	if r.IsEndpointAvailable("qwen") {
		t.Error("expected circuit to stay open after failed probe")
	}

	*now = now.Add(31 * time.Second)
	if !r.IsEndpointAvailable("qwen") {
		t.Fatal("expected another probe")
	}
	r.MarkEndpointSuccess("qwen")
	if h := r.GetEndpointHealth("qwen"); h.CircuitOpen || h.FailureCount != 0 {
		t.Errorf("expected circuit closed after success, got %+v", h)
	}
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen available after success")
	}
}

func TestGetAvailableFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	r.MarkEndpointFailure("claude-sonnet")

	chain := r.GetAvailableFallbackChain(CapabilityTransform)
	if len(chain) != 1 || chain[0] != "qwen" {
		t.Errorf("expected [qwen], got %v", chain)
	}

	// All unavailable returns the full chain.
	r.MarkEndpointFailure("qwen")
	chain = r.GetAvailableFallbackChain(CapabilityTransform)
	if len(chain) != 2 {
		t.Errorf("expected full chain, got %v", chain)
	}
}

func TestResetEndpointHealth(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	r.MarkEndpointFailure("qwen")
	r.ResetEndpointHealth("qwen")

	if r.GetEndpointHealth("qwen") != nil {
		t.Error("expected health cleared")
	}
	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen available after reset")
	}
}
