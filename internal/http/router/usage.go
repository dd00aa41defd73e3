package router

import (
	"appideas.app/engine/internal/http/handler"
	"appideas.app/engine/internal/http/middleware"
	"github.com/gin-gonic/gin"
)

// UsageRouter sets up usage routes
// - /api/v1/usage reports the caller's plan consumption
// - /admin/usage/reset requires the admin API key
func UsageRouter(rg *gin.RouterGroup, adminRg *gin.RouterGroup, h *handler.UsageHandler, adminKey string) {
	rg.GET("/usage", h.Usage)

	admin := adminRg.Group("/usage")
	admin.Use(middleware.RequireAdminKey(adminKey))
	{
		admin.POST("/reset", h.ResetUsage)
	}
}
