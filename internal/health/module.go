package health

import (
	"context"
	"errors"

	"go.uber.org/fx"

	"satbus/internal/core/agent"
	"satbus/internal/groundbridge"
	"satbus/internal/recorder"
	"satbus/internal/telemetrystore"
)

// Module provides health check functionality to the Fx application.
var Module = fx.Module("health",
	fx.Provide(ProvideHealthService),
)

// agentChecker reports healthy once the tick loop has produced telemetry,
// i.e. the agent is actually ticking rather than merely constructed.
type agentChecker struct {
	ag *agent.Agent
}

func (a *agentChecker) Name() string { return "agent" }

func (a *agentChecker) Check(ctx context.Context) error {
	if a.ag.LastTelemetry().TimestampMS == 0 {
		return errors.New("agent has not ticked yet")
	}
	return nil
}

// ProvideHealthService registers one checker per core component plus one
// per optional downstream sink. A disabled sink reports healthy - there is
// nothing for it to fail at - rather than being omitted from the report.
func ProvideHealthService(
	ag *agent.Agent,
	rec *recorder.Recorder,
	store *telemetrystore.Store,
	bridge *groundbridge.Bridge,
) *HealthService {
	svc := NewHealthService()

	svc.RegisterChecker(&agentChecker{ag: ag})
	svc.RegisterChecker(NewDatabaseChecker("recorder", rec))
	svc.RegisterChecker(NewDatabaseChecker("telemetry_store", store))
	svc.RegisterChecker(NewServiceChecker("ground_bridge", bridge))

	return svc
}
