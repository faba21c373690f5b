// internal/handlers/license.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

type LicenseHandler struct {
	licenseService *services.LicenseService
}

func NewLicenseHandler(licenseService *services.LicenseService) *LicenseHandler {
	return &LicenseHandler{licenseService: licenseService}
}

// GET /license
func (h *LicenseHandler) Get(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	if principal.CompanyID == nil {
		utils.RespondError(c, apperrors.LicenseViolation(apperrors.ReasonNoCompany, "user does not belong to a company"))
		return
	}

	license, occupied, err := h.licenseService.GetByCompany(*principal.CompanyID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license":        license,
		"seats_occupied": occupied,
	})
}

// POST /admin/licenses  (superuser only)
func (h *LicenseHandler) Provision(c *gin.Context) {
	var req services.ProvisionLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("invalid request body", err.Error()))
		return
	}

	license, err := h.licenseService.Provision(&req)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, license)
}

// POST /license/renew  (company admin only)
func (h *LicenseHandler) Renew(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	if principal.CompanyID == nil {
		utils.RespondError(c, apperrors.LicenseViolation(apperrors.ReasonNoCompany, "user does not belong to a company"))
		return
	}

	var req struct {
		Days int `json:"days" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, apperrors.Validation("days is required", nil))
		return
	}

	license, err := h.licenseService.Renew(*principal.CompanyID, req.Days)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, license)
}
