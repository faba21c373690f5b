// internal/handlers/join_request.go
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

type JoinRequestHandler struct {
	joinRequestService *services.JoinRequestService
}

func NewJoinRequestHandler(joinRequestService *services.JoinRequestService) *JoinRequestHandler {
	return &JoinRequestHandler{joinRequestService: joinRequestService}
}

// POST /join-requests
func (h *JoinRequestHandler) Create(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	var req services.CreateJoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	joinRequest, err := h.joinRequestService.Create(principal, &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, joinRequest)
}

// GET /networks/:id/join-requests
func (h *JoinRequestHandler) ListForNetwork(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	networkID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid network id", nil))
		return
	}

	params := utils.GetPaginationParams(c)
	result, err := h.joinRequestService.List(principal, networkID, params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /join-requests/mine
func (h *JoinRequestHandler) ListMine(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	params := utils.GetPaginationParams(c)
	result, err := h.joinRequestService.ListMine(principal, params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// POST /join-requests/:id/recommend
func (h *JoinRequestHandler) Recommend(c *gin.Context) {
	h.decide(c, h.joinRequestService.Recommend)
}

// POST /join-requests/:id/approve
func (h *JoinRequestHandler) Approve(c *gin.Context) {
	h.decide(c, h.joinRequestService.Approve)
}

// POST /join-requests/:id/deny
func (h *JoinRequestHandler) Deny(c *gin.Context) {
	h.decide(c, h.joinRequestService.Deny)
}

// POST /join-requests/:id/cancel
func (h *JoinRequestHandler) Cancel(c *gin.Context) {
	h.decide(c, h.joinRequestService.Cancel)
}

func (h *JoinRequestHandler) decide(c *gin.Context, fn func(*models.Principal, uuid.UUID) (*models.JoinRequest, error)) {
	principal := middleware.GetPrincipal(c)

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request id", nil))
		return
	}

	joinRequest, err := fn(principal, requestID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, joinRequest)
}
