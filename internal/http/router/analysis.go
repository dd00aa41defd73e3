package router

import (
	"appideas.app/engine/internal/http/handler"
	"github.com/gin-gonic/gin"
)

func AnalysisRouter(rg *gin.RouterGroup, h *handler.AnalysisHandler) {
	rg.POST("/analyses/app", h.SubmitApp)
	rg.POST("/analyses/idea", h.SubmitIdea)
	rg.GET("/analyses", h.List)
	rg.GET("/analyses/:id", h.Get)
	rg.GET("/runs/:id", h.GetRun)
	rg.GET("/runs/:id/stream", h.StreamRun)
}

// ShareRouter serves public share links; no user header is required.
func ShareRouter(rg *gin.RouterGroup, h *handler.AnalysisHandler) {
	rg.GET("/:slug", h.Share)
}
