package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"satbus/internal/core/agent"
	"satbus/internal/health"
)

// Handlers contains all API handlers. Every route here is read-only:
// commanding the bus happens exclusively over the NDJSON stream (§4.5/§6),
// never through this surface.
type Handlers struct {
	agent         *agent.Agent
	healthService *health.HealthService
	log           *zap.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(ag *agent.Agent, healthService *health.HealthService, logger *zap.Logger) *Handlers {
	return &Handlers{
		agent:         ag,
		healthService: healthService,
		log:           logger.With(zap.String("component", "api_handlers")),
	}
}

// HealthCheck runs every registered health checker and reports the worst
// status found.
func (h *Handlers) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	results := h.healthService.CheckAll(ctx)
	overallStatus := h.healthService.GetOverallStatus(results)

	response := gin.H{
		"checks": results,
		"status": overallStatus,
	}

	statusCode := http.StatusOK
	switch overallStatus {
	case health.StatusUnhealthy:
		statusCode = http.StatusServiceUnavailable
		h.log.Warn("health check failed - system unhealthy", zap.String("status", string(overallStatus)))
	case health.StatusDegraded:
		statusCode = http.StatusPartialContent
		h.log.Warn("health check shows degraded status", zap.String("status", string(overallStatus)))
	}

	c.JSON(statusCode, response)
}

// GetStatus returns the current safety/scheduling status summary.
func (h *Handlers) GetStatus(c *gin.Context) {
	s := h.agent.SafetySnapshot()
	tracked := h.agent.TrackedCommands()

	c.JSON(http.StatusOK, gin.H{
		"safety_level":      s.Level,
		"safe_mode_active":  s.SafeModeActive,
		"tracked_commands":  len(tracked),
		"safety_event_count": len(s.Events),
	})
}

// GetTelemetry returns the most recently built telemetry packet.
func (h *Handlers) GetTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, h.agent.LastTelemetry())
}

// GetSafetyEvents returns the safety event history ring, §4.4.
func (h *Handlers) GetSafetyEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"events": h.agent.SafetyEvents()})
}

// GetCommands returns the in-flight and recently-terminal tracked
// commands, §4.5.
func (h *Handlers) GetCommands(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"commands": h.agent.TrackedCommands()})
}
