package agent

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the core agent to the Fx application.
var Module = fx.Module("agent",
	fx.Provide(ProvideAgent),
)

// ProvideAgent constructs the agent at boot time, §2/§9.
func ProvideAgent(logger *zap.Logger) *Agent {
	return New(logger, time.Now().UnixMilli(), NewHostPerformanceSource())
}
