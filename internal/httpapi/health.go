package httpapi

import (
	"context"

	"github.com/jmylchreest/btorch/internal/version"
)

// HealthInput carries no parameters; it exists so HealthCheck matches the
// huma handler shape every other operation uses.
type HealthInput struct{}

// HealthOutput reports liveness.
type HealthOutput struct {
	Body struct {
		Status  string `json:"status" example:"ok" doc:"Liveness status"`
		Version string `json:"version" doc:"Running build version"`
	}
}

// HealthCheck answers the liveness probe. It never inspects downstream
// dependencies — readiness (dataset/market DB reachability) is a separate
// concern this surface does not expose, matching the route table's single
// "Liveness" entry.
func (a *api) HealthCheck(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.Version = version.Get().Short()
	return out, nil
}
