// internal/handlers/network.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

type NetworkHandler struct {
	networkService  *services.NetworkService
	snapshotService *services.SnapshotService
	authzService    *services.AuthorizationService
}

func NewNetworkHandler(networkService *services.NetworkService, snapshotService *services.SnapshotService,
	authzService *services.AuthorizationService) *NetworkHandler {
	return &NetworkHandler{
		networkService:  networkService,
		snapshotService: snapshotService,
		authzService:    authzService,
	}
}

// POST /networks
func (h *NetworkHandler) Create(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	var req services.CreateNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}

	network, err := h.networkService.Create(principal, &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, network)
}

// GET /networks
func (h *NetworkHandler) List(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	params := utils.GetPaginationParams(c)

	result, err := h.networkService.List(principal, params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /networks/:id
func (h *NetworkHandler) Get(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	network, err := h.networkService.Get(principal, networkID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, network)
}

// PATCH /networks/:id
func (h *NetworkHandler) Update(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	var req services.UpdateNetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}

	network, err := h.networkService.Update(principal, networkID, &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, network)
}

// DELETE /networks/:id
func (h *NetworkHandler) Delete(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	if err := h.networkService.Delete(principal, networkID); err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

// POST /networks/:id/leave
func (h *NetworkHandler) Leave(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	if err := h.networkService.Leave(principal, networkID); err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

// GET /networks/:id/status
//
// The pull variant of the realtime snapshot; both come from SnapshotService
// so a poller and a subscriber never disagree.
func (h *NetworkHandler) Status(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	network, err := h.authzService.NetworkForPrincipal(principal, networkID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	if err := h.authzService.Authorize(principal, services.ActionViewNetwork, network); err != nil {
		utils.RespondError(c, err)
		return
	}

	snapshot, err := h.snapshotService.BuildNetworkSnapshot(networkID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, snapshot)
}
