// internal/handlers/intruder.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

type IntruderHandler struct {
	intrusionService *services.IntrusionService
}

func NewIntruderHandler(intrusionService *services.IntrusionService) *IntruderHandler {
	return &IntruderHandler{intrusionService: intrusionService}
}

// POST /intruders/report
func (h *IntruderHandler) Report(c *gin.Context) {
	var report services.DetectionReport
	if err := c.ShouldBindJSON(&report); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}
	if report.IPAddress == "" {
		report.IPAddress = c.ClientIP()
	}

	log, err := h.intrusionService.Detect(&report)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, log)
}

// GET /networks/:id/intruders
func (h *IntruderHandler) ListForNetwork(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	params := utils.GetPaginationParams(c)
	result, err := h.intrusionService.List(principal, networkID, params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// POST /intruders/:id/advance
func (h *IntruderHandler) Advance(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	logID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid intruder log id", nil))
		return
	}

	var req struct {
		Status models.IntruderStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("status is required", nil))
		return
	}

	log, err := h.intrusionService.Advance(principal, logID, req.Status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, log)
}

// POST /networks/:id/intruders/read-all
func (h *IntruderHandler) MarkAllRead(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	updated, err := h.intrusionService.MarkAllRead(principal, networkID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"updated": updated})
}
