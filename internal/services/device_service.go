// internal/services/device_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/utils"
)

// DeviceService tracks device presence. Status (offline/pending/online) and
// the blocked flag are orthogonal: blocking never rewrites status, and an
// online blocked device stays out of snapshots until unblocked.
type DeviceService struct {
	db            *gorm.DB
	notifications *NotificationService
	authz         *AuthorizationService
	bus           realtime.Bus
}

type RegisterDeviceRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	MacAddress string `json:"mac_address" validate:"required,mac_address"`
	IPAddress  string `json:"ip_address,omitempty" validate:"omitempty,ip"`
}

type HeartbeatRequest struct {
	MacAddress string `json:"mac_address" validate:"required,mac_address"`
	IPAddress  string `json:"ip_address,omitempty" validate:"omitempty,ip"`
}

func NewDeviceService(db *gorm.DB, notifications *NotificationService, authz *AuthorizationService, bus realtime.Bus) *DeviceService {
	return &DeviceService{
		db:            db,
		notifications: notifications,
		authz:         authz,
		bus:           bus,
	}
}

// Register enrolls a device for the calling user in pending status.
func (s *DeviceService) Register(principal *models.Principal, req *RegisterDeviceRequest) (*models.Device, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid device", utils.GetValidationErrors(err))
	}

	mac, err := utils.NormalizeMAC(req.MacAddress)
	if err != nil {
		return nil, apperrors.Validation("invalid hardware address", nil)
	}

	var existing models.Device
	if err := s.db.Where("mac_address = ?", mac).First(&existing).Error; err == nil {
		return nil, apperrors.Conflict("a device with this hardware address is already registered")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	device := &models.Device{
		UserID:     &principal.ID,
		Name:       req.Name,
		MacAddress: mac,
		IPAddress:  req.IPAddress,
		Status:     models.DevicePending,
	}

	if err := s.db.Create(device).Error; err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	s.publishState(device)
	return device, nil
}

// Heartbeat is called by agents to report a device alive. It transitions the
// device to online and refreshes last_seen; blocked devices still heartbeat
// so their presence remains visible to admins.
func (s *DeviceService) Heartbeat(req *HeartbeatRequest) (*models.Device, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid heartbeat", utils.GetValidationErrors(err))
	}

	mac, err := utils.NormalizeMAC(req.MacAddress)
	if err != nil {
		return nil, apperrors.Validation("invalid hardware address", nil)
	}

	var device models.Device
	if err := s.db.Where("mac_address = ?", mac).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("device")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":    models.DeviceOnline,
		"last_seen": now,
	}
	if req.IPAddress != "" {
		updates["ip_address"] = req.IPAddress
	}

	if err := s.db.Model(&device).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}

	device.Status = models.DeviceOnline
	device.LastSeen = &now
	if req.IPAddress != "" {
		device.IPAddress = req.IPAddress
	}

	s.publishState(&device)
	return &device, nil
}

// MarkOffline transitions devices whose last_seen is older than cutoff.
// Run periodically by the reaper in cmd/server.
func (s *DeviceService) MarkOffline(cutoff time.Duration) (int64, error) {
	deadline := time.Now().Add(-cutoff)

	var stale []models.Device
	if err := s.db.Where("status = ? AND (last_seen IS NULL OR last_seen < ?)", models.DeviceOnline, deadline).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("failed to find stale devices: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(stale))
	for _, d := range stale {
		ids = append(ids, d.ID)
	}

	result := s.db.Model(&models.Device{}).Where("id IN ?", ids).Update("status", models.DeviceOffline)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark devices offline: %w", result.Error)
	}

	for i := range stale {
		stale[i].Status = models.DeviceOffline
		s.publishState(&stale[i])
	}

	return result.RowsAffected, nil
}

// Block excludes a device from every snapshot without touching its status.
func (s *DeviceService) Block(principal *models.Principal, deviceID uuid.UUID) (*models.Device, error) {
	return s.setBlocked(principal, deviceID, true)
}

// Unblock restores a device to snapshot eligibility.
func (s *DeviceService) Unblock(principal *models.Principal, deviceID uuid.UUID) (*models.Device, error) {
	return s.setBlocked(principal, deviceID, false)
}

func (s *DeviceService) setBlocked(principal *models.Principal, deviceID uuid.UUID, blocked bool) (*models.Device, error) {
	device, err := s.deviceForPrincipal(principal, deviceID)
	if err != nil {
		return nil, err
	}

	if !principal.IsSuperuser && !principal.IsCompanyAdmin() {
		return nil, apperrors.PermissionDenied("admin role required")
	}

	if device.IsBlocked == blocked {
		return nil, apperrors.Conflict("device is already in the requested state")
	}

	if err := s.db.Model(device).Update("is_blocked", blocked).Error; err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}
	device.IsBlocked = blocked

	if device.UserID != nil {
		verb := "unblocked"
		if blocked {
			verb = "blocked"
		}
		s.notifications.Notify(*device.UserID,
			fmt.Sprintf("Your device %s was %s", device.Name, verb), "/devices")
	}
	s.publishState(device)

	return device, nil
}

// List returns the caller's devices, or any company user's devices for an
// admin via ownerID.
func (s *DeviceService) List(principal *models.Principal, ownerID *uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	target := principal.ID
	if ownerID != nil && *ownerID != principal.ID {
		if !principal.IsSuperuser && !principal.IsCompanyAdmin() {
			return nil, apperrors.PermissionDenied("admin role required")
		}
		var owner models.User
		if err := s.db.First(&owner, "id = ?", *ownerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("user")
			}
			return nil, fmt.Errorf("database error: %w", err)
		}
		if !principal.IsSuperuser && (owner.CompanyID == nil || !principal.SameCompany(*owner.CompanyID)) {
			return nil, apperrors.NotFound("user")
		}
		target = *ownerID
	}

	query := s.db.Model(&models.Device{}).Where("user_id = ?", target)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", err)
	}

	var devices []models.Device
	query = utils.ApplySort(query, params, []string{"created_at", "last_seen", "name", "status"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch devices: %w", err)
	}

	result := utils.CreatePaginationResult(devices, total, params)
	return &result, nil
}

// deviceForPrincipal loads a device through the tenant boundary: owner,
// same-company admin, or superuser.
func (s *DeviceService) deviceForPrincipal(principal *models.Principal, deviceID uuid.UUID) (*models.Device, error) {
	var device models.Device
	if err := s.db.Preload("User").First(&device, "id = ?", deviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("device")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if principal.IsSuperuser {
		return &device, nil
	}
	if device.UserID != nil && *device.UserID == principal.ID {
		return &device, nil
	}
	if device.User != nil && device.User.CompanyID != nil && principal.SameCompany(*device.User.CompanyID) {
		return &device, nil
	}

	return nil, apperrors.NotFound("device")
}

// publishState pushes the device's new state to its owner, the owner's
// company scope, and every network the owner is an active member of.
func (s *DeviceService) publishState(device *models.Device) {
	if device.UserID == nil {
		return
	}

	var owner models.User
	if err := s.db.First(&owner, "id = ?", *device.UserID).Error; err != nil {
		return
	}

	s.bus.Publish(realtime.UserTopic(owner.ID), realtime.EventDeviceState, device)
	if owner.CompanyID != nil {
		s.bus.Publish(realtime.CompanyTopic(*owner.CompanyID), realtime.EventDeviceState, device)
	}

	var networkIDs []uuid.UUID
	if err := s.db.Model(&models.NetworkMembership{}).
		Where("user_id = ? AND active = ?", owner.ID, true).
		Pluck("network_id", &networkIDs).Error; err != nil {
		return
	}
	for _, networkID := range networkIDs {
		s.bus.Publish(realtime.NetworkTopic(networkID), realtime.EventDeviceState, device)
	}
}
