// internal/services/intrusion_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/utils"
)

// placeholderMAC marks detections whose hardware address could not be
// captured. A detection is never dropped for lack of one.
const placeholderMAC = "unknown"

// IntrusionService records detections and drives the forward-only triage
// lifecycle Detected -> Read -> Acknowledged | Escalated.
type IntrusionService struct {
	db            *gorm.DB
	notifications *NotificationService
	authz         *AuthorizationService
	bus           realtime.Bus
}

// DetectionReport is what a scanning agent submits when it sees an unknown
// endpoint on a monitored network.
type DetectionReport struct {
	NetworkID  *uuid.UUID `json:"network_id,omitempty"`
	IPAddress  string     `json:"ip_address" validate:"omitempty,ip"`
	MacAddress string     `json:"mac_address" validate:"omitempty,mac_address"`
	Note       string     `json:"note,omitempty" validate:"max=500"`
}

func NewIntrusionService(db *gorm.DB, notifications *NotificationService, authz *AuthorizationService, bus realtime.Bus) *IntrusionService {
	return &IntrusionService{
		db:            db,
		notifications: notifications,
		authz:         authz,
		bus:           bus,
	}
}

// Detect creates an immutable detection record. The reported MAC is matched
// against registered devices on a best-effort basis; an unmatched address is
// still recorded.
func (s *IntrusionService) Detect(report *DetectionReport) (*models.IntruderLog, error) {
	if err := utils.ValidateStruct(report); err != nil {
		return nil, apperrors.Validation("invalid detection report", utils.GetValidationErrors(err))
	}
	if report.IPAddress == "" && report.MacAddress == "" {
		return nil, apperrors.Validation("detection needs an ip or mac address", nil)
	}

	log := &models.IntruderLog{
		NetworkID:  report.NetworkID,
		IPAddress:  report.IPAddress,
		MacAddress: placeholderMAC,
		Status:     models.IntruderDetected,
		Note:       report.Note,
	}

	if report.MacAddress != "" {
		mac, err := utils.NormalizeMAC(report.MacAddress)
		if err != nil {
			return nil, apperrors.Validation("invalid hardware address", nil)
		}
		log.MacAddress = mac

		var device models.Device
		if err := s.db.Where("mac_address = ?", mac).First(&device).Error; err == nil {
			log.DeviceID = &device.ID
			log.UserID = device.UserID
		}
	}

	var network *models.Network
	if report.NetworkID != nil {
		var n models.Network
		if err := s.db.First(&n, "id = ?", *report.NetworkID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("network")
			}
			return nil, fmt.Errorf("database error: %w", err)
		}
		network = &n
	}

	if err := s.db.Create(log).Error; err != nil {
		return nil, fmt.Errorf("failed to record detection: %w", err)
	}

	if network != nil {
		s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventIntruderDetected, log)
		s.bus.Publish(realtime.CompanyTopic(network.CompanyID), realtime.EventIntruderDetected, log)
		s.notifyNetworkStaff(network, fmt.Sprintf("Intruder detected on %s", network.Name))
	}

	return log, nil
}

// RecordCrossTenantAttempt logs a join attempt against another company's
// network. Failure to record never blocks the caller's refusal path.
func (s *IntrusionService) RecordCrossTenantAttempt(principal *models.Principal, network *models.Network, deviceID *uuid.UUID, ipAddress string) {
	s.recordAttempt(principal, network, deviceID, ipAddress,
		fmt.Sprintf("cross-tenant join attempt by %s", principal.Email),
		fmt.Sprintf("Blocked join attempt on %s from outside the company", network.Name))
}

// RecordCrossTenantSubscribe logs a refused realtime subscription against
// another company's network.
func (s *IntrusionService) RecordCrossTenantSubscribe(principal *models.Principal, networkID uuid.UUID, ipAddress string) {
	var network models.Network
	if err := s.db.First(&network, "id = ?", networkID).Error; err != nil {
		return
	}
	if principal.SameCompany(network.CompanyID) {
		return
	}

	s.recordAttempt(principal, &network, nil, ipAddress,
		fmt.Sprintf("cross-tenant subscription attempt by %s", principal.Email),
		fmt.Sprintf("Blocked subscription to %s from outside the company", network.Name))
}

func (s *IntrusionService) recordAttempt(principal *models.Principal, network *models.Network, deviceID *uuid.UUID, ipAddress, note, message string) {
	// A public network is open by definition; nothing to record.
	if network.Visibility == models.VisibilityPublic {
		return
	}

	log := &models.IntruderLog{
		NetworkID:  &network.ID,
		DeviceID:   deviceID,
		UserID:     &principal.ID,
		IPAddress:  ipAddress,
		MacAddress: placeholderMAC,
		Status:     models.IntruderDetected,
		Note:       note,
	}

	if err := s.db.Create(log).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"network_id": network.ID,
			"user_id":    principal.ID,
		}).Error("Failed to record cross-tenant attempt")
		return
	}

	s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventIntruderDetected, log)
	s.bus.Publish(realtime.CompanyTopic(network.CompanyID), realtime.EventIntruderDetected, log)
	s.notifyNetworkStaff(network, message)
}

// notifyNetworkStaff fans a detection out to every active admin or manager
// membership of the target network.
func (s *IntrusionService) notifyNetworkStaff(network *models.Network, message string) {
	staff, err := s.authz.NetworkStaffIDs(network.ID)
	if err != nil {
		logrus.WithError(err).WithField("network_id", network.ID).Error("Failed to load network staff")
		return
	}
	s.notifications.NotifyMany(staff, message, "/networks/"+network.ID.String()+"/intruders")
}

// Advance moves a detection strictly forward through triage. Sideways and
// backwards transitions are conflicts, as is re-applying the current status.
func (s *IntrusionService) Advance(principal *models.Principal, logID uuid.UUID, to models.IntruderStatus) (*models.IntruderLog, error) {
	var log models.IntruderLog
	if err := s.db.First(&log, "id = ?", logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("intruder log")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if log.NetworkID != nil {
		network, err := s.authz.NetworkForPrincipal(principal, *log.NetworkID)
		if err != nil {
			return nil, err
		}
		if err := s.authz.Authorize(principal, ActionManageIntruders, network); err != nil {
			return nil, err
		}
	} else if !principal.IsSuperuser && !principal.IsCompanyAdmin() && principal.Role != models.RoleManager {
		return nil, apperrors.PermissionDenied("manager role required")
	}

	if !log.Status.CanAdvanceTo(to) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot move intruder log from %s to %s", log.Status, to))
	}

	result := s.db.Model(&models.IntruderLog{}).
		Where("id = ? AND status = ?", logID, log.Status).
		Update("status", to)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to advance intruder log: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.Conflict("intruder log was updated concurrently")
	}

	log.Status = to
	return &log, nil
}

// MarkAllRead bulk-advances a network's fresh detections to Read.
func (s *IntrusionService) MarkAllRead(principal *models.Principal, networkID uuid.UUID) (int64, error) {
	network, err := s.authz.NetworkForPrincipal(principal, networkID)
	if err != nil {
		return 0, err
	}
	if err := s.authz.Authorize(principal, ActionManageIntruders, network); err != nil {
		return 0, err
	}

	result := s.db.Model(&models.IntruderLog{}).
		Where("network_id = ? AND status = ?", networkID, models.IntruderDetected).
		Update("status", models.IntruderRead)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark intruder logs read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// List returns a network's detections, newest first.
func (s *IntrusionService) List(principal *models.Principal, networkID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	network, err := s.authz.NetworkForPrincipal(principal, networkID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(principal, ActionManageIntruders, network); err != nil {
		return nil, err
	}

	query := s.db.Model(&models.IntruderLog{}).Where("network_id = ?", networkID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count intruder logs: %w", err)
	}

	var logs []models.IntruderLog
	query = utils.ApplySort(query, params, []string{"created_at", "status"})
	query = utils.ApplyPagination(query, params)
	if err := query.Preload("Device").Preload("User").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch intruder logs: %w", err)
	}

	result := utils.CreatePaginationResult(logs, total, params)
	return &result, nil
}
