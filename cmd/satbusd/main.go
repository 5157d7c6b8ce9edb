package main

import (
	"go.uber.org/fx"

	"satbus/internal/api"
	"satbus/internal/config"
	"satbus/internal/core/agent"
	"satbus/internal/groundbridge"
	"satbus/internal/health"
	"satbus/internal/logger"
	"satbus/internal/recorder"
	"satbus/internal/server"
	"satbus/internal/telemetrystore"
)

func main() {
	app := fx.New(
		// Configuration
		config.Module,

		// Logging
		logger.Module,
		logger.FxLogger,

		// Core simulation agent (§2/§9)
		agent.Module,

		// NDJSON command/telemetry stream (§5/§7)
		server.Module,

		// Optional downstream sinks
		groundbridge.Module,
		recorder.Module,
		telemetrystore.Module,

		// Health monitoring
		health.Module,

		// Read-only ops/status API
		api.Module,
	)

	app.Run()
}
