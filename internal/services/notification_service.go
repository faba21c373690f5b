// internal/services/notification_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/utils"
)

type NotificationService struct {
	db  *gorm.DB
	bus realtime.Bus
}

func NewNotificationService(db *gorm.DB, bus realtime.Bus) *NotificationService {
	return &NotificationService{db: db, bus: bus}
}

// Notify persists the notification first, then pushes it to the user's
// scope. The row is the source of truth; the push is best effort.
func (s *NotificationService) Notify(userID uuid.UUID, message, link string) (*models.Notification, error) {
	notification := &models.Notification{
		UserID:  userID,
		Message: message,
		Link:    link,
	}

	if err := s.db.Create(notification).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.bus.Publish(realtime.UserTopic(userID), realtime.EventNotification, notification)
	return notification, nil
}

// NotifyMany fans one message out to several users. A failed row is logged
// and skipped so one bad recipient does not starve the rest.
func (s *NotificationService) NotifyMany(userIDs []uuid.UUID, message, link string) {
	for _, userID := range userIDs {
		if _, err := s.Notify(userID, message, link); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Error("Failed to deliver notification")
		}
	}
}

func (s *NotificationService) List(userID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.Model(&models.Notification{}).Where("user_id = ?", userID)

	if params.Status == "unread" {
		query = query.Where("read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}

	var notifications []models.Notification
	query = utils.ApplySort(query, params, []string{"created_at"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	result := utils.CreatePaginationResult(notifications, total, params)
	return &result, nil
}

func (s *NotificationService) MarkRead(userID, notificationID uuid.UUID) error {
	result := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("read", true)

	if result.Error != nil {
		return fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("notification")
	}
	return nil
}

func (s *NotificationService) MarkAllRead(userID uuid.UUID) (int64, error) {
	result := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)

	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *NotificationService) UnreadCount(userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
