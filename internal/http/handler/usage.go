package handler

import (
	"net/http"

	"appideas.app/engine/internal/http/dto"
	"appideas.app/engine/internal/http/middleware"
	"appideas.app/engine/internal/service"
	"github.com/gin-gonic/gin"
)

type UsageHandler struct {
	entitlements service.EntitlementService
	maintenance  service.MaintenanceService
}

func NewUsageHandler(entitlements service.EntitlementService, maintenance service.MaintenanceService) *UsageHandler {
	return &UsageHandler{entitlements: entitlements, maintenance: maintenance}
}

func (h *UsageHandler) Usage(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	usage, err := h.entitlements.Usage(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load usage")
		return
	}
	c.JSON(http.StatusOK, dto.ToUsageResponse(usage))
}

// ResetUsage runs the monthly usage reset on demand (admin only).
func (h *UsageHandler) ResetUsage(c *gin.Context) {
	n, err := h.maintenance.ResetMonthlyUsage(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to reset usage")
		return
	}
	c.JSON(http.StatusOK, dto.ResetUsageResponse{UsersReset: n})
}
