// internal/handlers/auth.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}

	tokens, err := h.authService.Login(&req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, tokens)
}

// POST /auth/register
func (h *AuthHandler) RegisterCompany(c *gin.Context) {
	var req services.RegisterCompanyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}

	tokens, err := h.authService.RegisterCompany(&req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, tokens)
}

// POST /auth/users
func (h *AuthHandler) RegisterUser(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}

	user, err := h.authService.RegisterUser(principal, &req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, user)
}

// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("refresh_token is required", nil))
		return
	}

	tokens, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, tokens)
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	if principal == nil {
		utils.UnauthorizedResponse(c, "")
		return
	}

	user, err := h.authService.Me(principal)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, user)
}
