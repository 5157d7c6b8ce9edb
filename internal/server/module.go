package server

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/agent"
)

// Module provides the NDJSON stream server to the Fx application.
var Module = fx.Module("server",
	fx.Provide(ProvideServer),
	fx.Invoke(RegisterLifecycle),
)

// ProvideServer constructs the stream server against the shared agent.
func ProvideServer(cfg *config.Config, ag *agent.Agent, logger *zap.Logger) *Server {
	return New(cfg.Server, cfg.Simulation, ag, logger)
}

// RegisterLifecycle starts and stops the server with the Fx app.
func RegisterLifecycle(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return s.Start(ctx) },
		OnStop:  func(ctx context.Context) error { return s.Stop(ctx) },
	})
}
