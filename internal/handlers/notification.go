// internal/handlers/notification.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/middleware"
	"github.com/netwarden/backend/internal/services"
	"github.com/netwarden/backend/internal/utils"
)

type NotificationHandler struct {
	notificationService *services.NotificationService
}

func NewNotificationHandler(notificationService *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// GET /notifications
func (h *NotificationHandler) List(c *gin.Context) {
	principal := middleware.GetPrincipal(c)
	params := utils.GetPaginationParams(c)

	result, err := h.notificationService.List(principal.ID, params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// GET /notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	count, err := h.notificationService.UnreadCount(principal.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"unread": count})
}

// POST /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.RespondError(c, apperrors.Validation("invalid notification id", nil))
		return
	}

	if err := h.notificationService.MarkRead(principal.ID, notificationID); err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.NoContentResponse(c)
}

// POST /notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	updated, err := h.notificationService.MarkAllRead(principal.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"updated": updated})
}
