package services

import (
	"context"
	"fmt"
	"os/exec"
)

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck func(ctx context.Context) error

// HealthImplementation implements the liveness and readiness probes
type HealthImplementation struct {
	checks map[string]ReadinessCheck
}

// NewHealthService creates a new health service implementation
func NewHealthService(checks map[string]ReadinessCheck) *HealthImplementation {
	return &HealthImplementation{checks: checks}
}

// Healthz implements the liveness probe
func (h *HealthImplementation) Healthz(ctx context.Context) error {
	return nil
}

// Readyz runs every readiness check and fails on the first error.
func (h *HealthImplementation) Readyz(ctx context.Context) error {
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// BinaryCheck fails when name is not on PATH.
func BinaryCheck(name string) ReadinessCheck {
	return func(ctx context.Context) error {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%s not found: %w", name, err)
		}
		return nil
	}
}
