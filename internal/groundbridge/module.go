package groundbridge

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/agent"
)

// Module provides the ground bridge to the Fx application.
var Module = fx.Module("groundbridge",
	fx.Provide(ProvideBridge),
	fx.Invoke(RegisterLifecycle),
)

// ProvideBridge constructs the ground bridge against the shared agent.
func ProvideBridge(cfg *config.Config, ag *agent.Agent, logger *zap.Logger) (*Bridge, error) {
	return New(cfg.GroundBridge, ag, logger)
}

// RegisterLifecycle starts and stops the bridge with the Fx app.
func RegisterLifecycle(lc fx.Lifecycle, b *Bridge) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return b.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return b.Stop(ctx) },
	})
}
