package observability

import (
	"context"

	"github.com/kbukum/eventkit/component"
)

// HealthStatus represents the overall health state of a service.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusDegraded HealthStatus = "degraded"
)

// ServiceHealth describes the overall health of a service and its components.
type ServiceHealth struct {
	Service    string             `json:"service"`
	Status     HealthStatus       `json:"status"`
	Version    string             `json:"version,omitempty"`
	Components []component.Health `json:"components,omitempty"`
}

// HealthChecker is implemented by anything that can report component health.
// component.Registry satisfies it.
type HealthChecker interface {
	HealthAll(ctx context.Context) []component.Health
}

// NewServiceHealth creates a ServiceHealth with status up.
func NewServiceHealth(service, version string) *ServiceHealth {
	return &ServiceHealth{
		Service: service,
		Status:  HealthStatusUp,
		Version: version,
	}
}

// CheckHealth aggregates the component health reported by checker.
func CheckHealth(ctx context.Context, service, version string, checker HealthChecker) *ServiceHealth {
	sh := NewServiceHealth(service, version)
	for _, h := range checker.HealthAll(ctx) {
		sh.AddComponent(h)
	}
	return sh
}

// AddComponent adds a component health result and degrades overall status if needed.
func (sh *ServiceHealth) AddComponent(ch component.Health) {
	sh.Components = append(sh.Components, ch)

	switch ch.Status {
	case component.StatusUnhealthy:
		sh.Status = HealthStatusDown
	case component.StatusDegraded:
		if sh.Status != HealthStatusDown {
			sh.Status = HealthStatusDegraded
		}
	}
}

// Unhealthy returns the components that are not healthy.
func (sh *ServiceHealth) Unhealthy() []component.Health {
	var out []component.Health
	for _, c := range sh.Components {
		if c.Status != component.StatusHealthy {
			out = append(out, c)
		}
	}
	return out
}
