// internal/handlers/device.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

type DeviceHandler struct {
	deviceService *services.DeviceService
}

func NewDeviceHandler(deviceService *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

// POST /devices
func (h *DeviceHandler) Register(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	var req services.RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	device, err := h.deviceService.Register(principal, &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, device)
}

// GET /devices
func (h *DeviceHandler) List(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	params := utils.GetPaginationParams(c)

	var ownerID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			utils.RespondError(c, apperrors.Validation("invalid user id", nil))
			return
		}
		ownerID = &parsed
	}

	result, err := h.deviceService.List(principal, ownerID, params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// POST /devices/:id/block
func (h *DeviceHandler) Block(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid device id", nil))
		return
	}

	device, err := h.deviceService.Block(principal, deviceID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, device)
}

// POST /devices/:id/unblock
func (h *DeviceHandler) Unblock(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid device id", nil))
		return
	}

	device, err := h.deviceService.Unblock(principal, deviceID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, device)
}

// POST /devices/heartbeat
//
// Agent endpoint, authenticated by the agent rate-limited surface rather
// than a user session.
func (h *DeviceHandler) Heartbeat(c *gin.Context) {
	var req services.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	device, err := h.deviceService.Heartbeat(&req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, device)
}
