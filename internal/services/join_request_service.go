// internal/services/join_request_service.go
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

// JoinRequestService owns the request lifecycle:
//
//	pending -> recommended -> approved | denied
//	pending -> approved | denied | cancelled
//	recommended -> cancelled
//
// Terminal statuses never change. Every decision is a guarded update so two
// racing deciders resolve to exactly one winner; the loser gets a conflict.
type JoinRequestService struct {
	db            *gorm.DB
	licenses      *LicenseService
	intrusions    *IntrusionService
	notifications *NotificationService
	authz         *AuthorizationService
	bus           realtime.Bus
}

type CreateJoinRequest struct {
	NetworkID uuid.UUID  `json:"network_id" validate:"required"`
	DeviceID  *uuid.UUID `json:"device_id,omitempty"`
	IPAddress string     `json:"ip_address,omitempty" validate:"omitempty,ip"`
}

func NewJoinRequestService(db *gorm.DB, licenses *LicenseService, intrusions *IntrusionService,
	notifications *NotificationService, authz *AuthorizationService, bus realtime.Bus) *JoinRequestService {
	return &JoinRequestService{
		db:            db,
		licenses:      licenses,
		intrusions:    intrusions,
		notifications: notifications,
		authz:         authz,
		bus:           bus,
	}
}

// Create files a join request after passing the license gate. A request
// against another company's network is recorded as an intrusion before being
// refused.
func (s *JoinRequestService) Create(principal *models.Principal, req *CreateJoinRequest) (*models.JoinRequest, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid join request", utils.GetValidationErrors(err))
	}

	var network models.Network
	if err := s.db.First(&network, "id = ?", req.NetworkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("network")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !principal.IsSuperuser && !principal.SameCompany(network.CompanyID) {
		s.intrusions.RecordCrossTenantAttempt(principal, &network, req.DeviceID, req.IPAddress)
		return nil, apperrors.NotFound("network")
	}

	var device *models.Device
	if req.DeviceID != nil {
		var d models.Device
		if err := s.db.First(&d, "id = ?", *req.DeviceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.NotFound("device")
			}
			return nil, fmt.Errorf("database error: %w", err)
		}
		if d.UserID == nil || *d.UserID != principal.ID {
			return nil, apperrors.NotFound("device")
		}
		if d.IsBlocked {
			return nil, apperrors.Conflict("device is blocked")
		}
		device = &d
	}

	joinRequest := &models.JoinRequest{
		NetworkID: req.NetworkID,
		UserID:    principal.ID,
		DeviceID:  req.DeviceID,
		IPAddress: req.IPAddress,
		Status:    models.JoinRequestPending,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.licenses.CheckAccess(tx, principal.CompanyID, principal.ID); err != nil {
			return err
		}

		var member int64
		if err := tx.Model(&models.NetworkMembership{}).
			Where("network_id = ? AND user_id = ? AND active = ?", req.NetworkID, principal.ID, true).
			Count(&member).Error; err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if member > 0 {
			return apperrors.Conflict("already an active member of this network")
		}

		// Terminal requests are history and may be superseded; only one live
		// request per network/user pair. The partial unique index backs this
		// check under concurrency.
		var live int64
		if err := tx.Model(&models.JoinRequest{}).
			Where("network_id = ? AND user_id = ? AND status IN ?",
				req.NetworkID, principal.ID,
				[]models.JoinRequestStatus{models.JoinRequestPending, models.JoinRequestRecommended}).
			Count(&live).Error; err != nil {
			return fmt.Errorf("failed to check existing requests: %w", err)
		}
		if live > 0 {
			return apperrors.Conflict("a request for this network is already open")
		}

		if err := tx.Create(joinRequest).Error; err != nil {
			return fmt.Errorf("failed to create join request: %w", err)
		}

		if device != nil {
			if err := tx.Model(device).Update("status", models.DevicePending).Error; err != nil {
				return fmt.Errorf("failed to mark device pending: %w", err)
			}
			device.Status = models.DevicePending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if staff, err := s.authz.CompanyStaffIDs(network.CompanyID); err == nil {
		s.notifications.NotifyMany(staff,
			fmt.Sprintf("%s requested to join %s", principal.Email, network.Name),
			"/networks/"+network.ID.String()+"/requests")
	}
	s.publishRequest(&network, joinRequest)
	if device != nil {
		s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventDeviceState, device)
	}

	return joinRequest, nil
}

// Recommend is the manager pre-screen: pending -> recommended.
func (s *JoinRequestService) Recommend(principal *models.Principal, requestID uuid.UUID) (*models.JoinRequest, error) {
	joinRequest, network, err := s.loadForDecision(principal, requestID, ActionRecommendRequest)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := s.db.Model(&models.JoinRequest{}).
		Where("id = ? AND status = ?", requestID, models.JoinRequestPending).
		Updates(map[string]interface{}{
			"status":     models.JoinRequestRecommended,
			"decided_by": principal.ID,
			"decided_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to recommend request: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, apperrors.Conflict("request is no longer pending")
	}

	joinRequest.Status = models.JoinRequestRecommended
	joinRequest.DecidedBy = &principal.ID
	joinRequest.DecidedAt = &now

	if admins, err := s.authz.CompanyAdminIDs(network.CompanyID); err == nil {
		s.notifications.NotifyMany(admins,
			fmt.Sprintf("A join request for %s was recommended for approval", network.Name),
			"/networks/"+network.ID.String()+"/requests")
	}
	s.publishRequest(network, joinRequest)

	return joinRequest, nil
}

// Approve finalizes a request, re-running the license gate and activating
// the membership in one transaction.
func (s *JoinRequestService) Approve(principal *models.Principal, requestID uuid.UUID) (*models.JoinRequest, error) {
	joinRequest, network, err := s.loadForDecision(principal, requestID, ActionDecideRequest)
	if err != nil {
		return nil, err
	}

	var requester models.User
	if err := s.db.First(&requester, "id = ?", joinRequest.UserID).Error; err != nil {
		return nil, fmt.Errorf("failed to load requester: %w", err)
	}

	now := time.Now()
	var device *models.Device

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Seat check holds the license row until commit, so two racing
		// approvals cannot both claim the last seat.
		if err := s.licenses.CheckAccess(tx, requester.CompanyID, requester.ID); err != nil {
			return err
		}

		result := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status IN ?", requestID,
				[]models.JoinRequestStatus{models.JoinRequestPending, models.JoinRequestRecommended}).
			Updates(map[string]interface{}{
				"status":     models.JoinRequestApproved,
				"decided_by": principal.ID,
				"decided_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to approve request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict("request has already been decided")
		}

		var membership models.NetworkMembership
		err := tx.Where("network_id = ? AND user_id = ?", joinRequest.NetworkID, joinRequest.UserID).
			First(&membership).Error
		switch {
		case err == nil:
			if err := tx.Model(&membership).Update("active", true).Error; err != nil {
				return fmt.Errorf("failed to reactivate membership: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Request-created memberships always start as employee; network
			// roles are granted separately.
			membership = models.NetworkMembership{
				NetworkID: joinRequest.NetworkID,
				UserID:    joinRequest.UserID,
				Role:      models.RoleEmployee,
				Active:    true,
			}
			if err := tx.Create(&membership).Error; err != nil {
				return fmt.Errorf("failed to create membership: %w", err)
			}
		default:
			return fmt.Errorf("database error: %w", err)
		}

		if joinRequest.DeviceID != nil {
			var d models.Device
			if err := tx.First(&d, "id = ?", *joinRequest.DeviceID).Error; err == nil && !d.IsBlocked {
				updates := map[string]interface{}{"status": models.DeviceOnline, "last_seen": now}
				if err := tx.Model(&d).Updates(updates).Error; err != nil {
					return fmt.Errorf("failed to bring device online: %w", err)
				}
				d.Status = models.DeviceOnline
				d.LastSeen = &now
				device = &d
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	joinRequest.Status = models.JoinRequestApproved
	joinRequest.DecidedBy = &principal.ID
	joinRequest.DecidedAt = &now

	s.notifications.Notify(joinRequest.UserID,
		fmt.Sprintf("Your request to join %s was approved", network.Name),
		"/networks/"+network.ID.String())
	s.publishRequest(network, joinRequest)
	s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventMembershipUpdated, map[string]interface{}{
		"network_id": network.ID,
		"user_id":    joinRequest.UserID,
		"active":     true,
	})
	if device != nil {
		s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventDeviceState, device)
	}

	return joinRequest, nil
}

// Deny closes a request: pending or recommended -> denied.
func (s *JoinRequestService) Deny(principal *models.Principal, requestID uuid.UUID) (*models.JoinRequest, error) {
	joinRequest, network, err := s.loadForDecision(principal, requestID, ActionDecideRequest)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var device *models.Device

	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status IN ?", requestID,
				[]models.JoinRequestStatus{models.JoinRequestPending, models.JoinRequestRecommended}).
			Updates(map[string]interface{}{
				"status":     models.JoinRequestDenied,
				"decided_by": principal.ID,
				"decided_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to deny request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict("request has already been decided")
		}

		device, err = takeRequestDeviceOffline(tx, joinRequest)
		return err
	})
	if err != nil {
		return nil, err
	}

	joinRequest.Status = models.JoinRequestDenied
	joinRequest.DecidedBy = &principal.ID
	joinRequest.DecidedAt = &now

	s.notifications.Notify(joinRequest.UserID,
		fmt.Sprintf("Your request to join %s was denied", network.Name), "")
	s.publishRequest(network, joinRequest)
	if device != nil {
		s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventDeviceState, device)
	}

	return joinRequest, nil
}

// Cancel lets the requester withdraw an undecided request.
func (s *JoinRequestService) Cancel(principal *models.Principal, requestID uuid.UUID) (*models.JoinRequest, error) {
	var joinRequest models.JoinRequest
	if err := s.db.First(&joinRequest, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("join request")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if joinRequest.UserID != principal.ID && !principal.IsSuperuser {
		return nil, apperrors.NotFound("join request")
	}

	var network models.Network
	if err := s.db.First(&network, "id = ?", joinRequest.NetworkID).Error; err != nil {
		return nil, fmt.Errorf("failed to load network: %w", err)
	}

	now := time.Now()
	var device *models.Device

	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status IN ?", requestID,
				[]models.JoinRequestStatus{models.JoinRequestPending, models.JoinRequestRecommended}).
			Updates(map[string]interface{}{
				"status":     models.JoinRequestCancelled,
				"decided_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to cancel request: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Conflict("request has already been decided")
		}

		var err error
		device, err = takeRequestDeviceOffline(tx, &joinRequest)
		return err
	})
	if err != nil {
		return nil, err
	}

	joinRequest.Status = models.JoinRequestCancelled
	joinRequest.DecidedAt = &now

	if staff, err := s.authz.NetworkStaffIDs(network.ID); err == nil {
		s.notifications.NotifyMany(staff,
			fmt.Sprintf("%s withdrew their request to join %s", principal.Email, network.Name),
			"/networks/"+network.ID.String()+"/requests")
	}
	s.publishRequest(&network, &joinRequest)
	if device != nil {
		s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventDeviceState, device)
	}

	return &joinRequest, nil
}

// List returns a network's requests, filterable by status.
func (s *JoinRequestService) List(principal *models.Principal, networkID uuid.UUID, params utils.PaginationParams) (*utils.PaginationResult, error) {
	network, err := s.authz.NetworkForPrincipal(principal, networkID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(principal, ActionRecommendRequest, network); err != nil {
		return nil, err
	}

	query := s.db.Model(&models.JoinRequest{}).Where("network_id = ?", networkID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count join requests: %w", err)
	}

	var requests []models.JoinRequest
	query = utils.ApplySort(query, params, []string{"created_at", "decided_at", "status"})
	query = utils.ApplyPagination(query, params)
	if err := query.Preload("User").Preload("Device").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch join requests: %w", err)
	}

	result := utils.CreatePaginationResult(requests, total, params)
	return &result, nil
}

// ListMine returns the caller's own requests across all networks.
func (s *JoinRequestService) ListMine(principal *models.Principal, params utils.PaginationParams) (*utils.PaginationResult, error) {
	query := s.db.Model(&models.JoinRequest{}).Where("user_id = ?", principal.ID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count join requests: %w", err)
	}

	var requests []models.JoinRequest
	query = utils.ApplySort(query, params, []string{"created_at", "decided_at", "status"})
	query = utils.ApplyPagination(query, params)
	if err := query.Preload("Network").Preload("Device").Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch join requests: %w", err)
	}

	result := utils.CreatePaginationResult(requests, total, params)
	return &result, nil
}

func (s *JoinRequestService) loadForDecision(principal *models.Principal, requestID uuid.UUID, action Action) (*models.JoinRequest, *models.Network, error) {
	var joinRequest models.JoinRequest
	if err := s.db.First(&joinRequest, "id = ?", requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, apperrors.NotFound("join request")
		}
		return nil, nil, fmt.Errorf("database error: %w", err)
	}

	network, err := s.authz.NetworkForPrincipal(principal, joinRequest.NetworkID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authz.Authorize(principal, action, network); err != nil {
		return nil, nil, err
	}

	return &joinRequest, network, nil
}

func (s *JoinRequestService) publishRequest(network *models.Network, joinRequest *models.JoinRequest) {
	s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventJoinRequest, joinRequest)
}

// takeRequestDeviceOffline flips a closed request's attached device back to
// offline inside the deciding transaction.
func takeRequestDeviceOffline(tx *gorm.DB, joinRequest *models.JoinRequest) (*models.Device, error) {
	if joinRequest.DeviceID == nil {
		return nil, nil
	}

	var device models.Device
	if err := tx.First(&device, "id = ?", *joinRequest.DeviceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := tx.Model(&device).Update("status", models.DeviceOffline).Error; err != nil {
		return nil, fmt.Errorf("failed to take device offline: %w", err)
	}
	device.Status = models.DeviceOffline
	return &device, nil
}
