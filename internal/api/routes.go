package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRoutes configures all API routes
func SetupRoutes(handlers *Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Middleware
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware())
	router.Use(ErrorHandlerMiddleware(logger))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", handlers.HealthCheck)

	// Read-only ops surface, §9: commanding the bus is NDJSON-only.
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", handlers.GetStatus)
		v1.GET("/telemetry", handlers.GetTelemetry)
		v1.GET("/safety/events", handlers.GetSafetyEvents)
		v1.GET("/commands", handlers.GetCommands)
	}

	return router
}
