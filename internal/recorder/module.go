package recorder

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/agent"
)

// Module provides the flight recorder to the Fx application and wires it
// into the shared agent so terminal commands and resolved safety events
// reach it automatically.
var Module = fx.Module("recorder",
	fx.Provide(ProvideRecorder),
	fx.Invoke(RegisterLifecycle),
	fx.Invoke(WireAgent),
)

// ProvideRecorder constructs the flight recorder.
func ProvideRecorder(cfg *config.Config, logger *zap.Logger) (*Recorder, error) {
	return New(cfg.Recorder, logger)
}

// RegisterLifecycle closes the recorder's connection pool with the Fx app.
func RegisterLifecycle(lc fx.Lifecycle, r *Recorder) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return r.Close() },
	})
}

// WireAgent attaches the recorder to the agent as its EventRecorder.
func WireAgent(ag *agent.Agent, r *Recorder) {
	ag.SetRecorder(r)
}
