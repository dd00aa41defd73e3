package router

import (
	"net/http"

	"appideas.app/engine/internal/http/handler"
	"appideas.app/engine/internal/http/middleware"
	"appideas.app/engine/internal/service"
	"github.com/gin-gonic/gin"
)

type RouterConfig struct {
	AdminAPIKey       string
	RequestsPerSecond float64
	Burst             int
}

// Services is the subset of service.Services the HTTP API needs.
type Services interface {
	Analyses() service.AnalysisService
	Entitlements() service.EntitlementService
	Maintenance() service.MaintenanceService
}

func SetupRoutes(router *gin.Engine, services Services, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	limiter := middleware.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	analysisHandler := handler.NewAnalysisHandler(services.Analyses())
	usageHandler := handler.NewUsageHandler(services.Entitlements(), services.Maintenance())

	v1 := router.Group("/api/v1")
	{
		ShareRouter(v1.Group("/share", limiter.Handler()), analysisHandler)

		authed := v1.Group("", middleware.RequireUser(), limiter.Handler())
		AnalysisRouter(authed, analysisHandler)
		UsageRouter(authed, router.Group("/admin"), usageHandler, cfg.AdminAPIKey)
	}
}
