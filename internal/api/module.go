package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"satbus/internal/config"
	"satbus/internal/core/agent"
	"satbus/internal/health"
)

// Module provides the read-only ops/status HTTP server to the Fx application.
var Module = fx.Module("api",
	fx.Provide(
		ProvideHandlers,
		ProvideRouter,
		ProvideHTTPServer,
	),
	fx.Invoke(RegisterLifecycle),
)

// ProvideHandlers creates the API handlers.
func ProvideHandlers(ag *agent.Agent, healthService *health.HealthService, logger *zap.Logger) *Handlers {
	return NewHandlers(ag, healthService, logger)
}

// ProvideRouter creates and configures the Gin router.
func ProvideRouter(handlers *Handlers, logger *zap.Logger) *gin.Engine {
	return SetupRoutes(handlers, logger)
}

// ProvideHTTPServer creates the HTTP server.
func ProvideHTTPServer(cfg *config.Config, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler: router,
	}
}

// RegisterLifecycle registers lifecycle hooks for the HTTP server.
func RegisterLifecycle(lc fx.Lifecycle, server *http.Server, logger *zap.Logger) {
	log := logger.With(zap.String("component", "api"))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("starting HTTP server", zap.String("addr", server.Addr))
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("HTTP server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping HTTP server")
			return server.Shutdown(ctx)
		},
	})
}
