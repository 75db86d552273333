package ports

import "context"

// HealthChecker is a dependency probed by GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}

// NamedCheck adapts a probe function to HealthChecker.
type NamedCheck struct {
	Dependency string
	Probe      func(ctx context.Context) error
}

func (c NamedCheck) Ping(ctx context.Context) error { return c.Probe(ctx) }

func (c NamedCheck) Name() string { return c.Dependency }
