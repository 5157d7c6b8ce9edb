package telemetrystore

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/server"
)

// Module provides the telemetry time-series store to the Fx application
// and wires it into the stream server so every tick is recorded.
var Module = fx.Module("telemetrystore",
	fx.Provide(ProvideStore),
	fx.Invoke(RegisterLifecycle),
	fx.Invoke(WireServer),
)

// ProvideStore constructs the telemetry store.
func ProvideStore(cfg *config.Config, logger *zap.Logger) (*Store, error) {
	return New(cfg.TelemetryStore, logger)
}

// RegisterLifecycle closes the store's client with the Fx app.
func RegisterLifecycle(lc fx.Lifecycle, s *Store) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return s.Close() },
	})
}

// WireServer attaches the store to the stream server as its TelemetrySink.
func WireServer(srv *server.Server, s *Store) {
	srv.SetTelemetrySink(s)
}
