// internal/services/network_service.go
package services

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/utils"
)

type NetworkService struct {
	db    *gorm.DB
	authz *AuthorizationService
	bus   realtime.Bus
}

type CreateNetworkRequest struct {
	Name        string                   `json:"name" validate:"required,min=2,max=150"`
	Description string                   `json:"description,omitempty" validate:"max=2000"`
	Visibility  models.NetworkVisibility `json:"visibility,omitempty" validate:"omitempty,oneof=company invite public"`
}

type UpdateNetworkRequest struct {
	Name        *string                   `json:"name,omitempty" validate:"omitempty,min=2,max=150"`
	Description *string                   `json:"description,omitempty" validate:"omitempty,max=2000"`
	Visibility  *models.NetworkVisibility `json:"visibility,omitempty" validate:"omitempty,oneof=company invite public"`
}

func NewNetworkService(db *gorm.DB, authz *AuthorizationService, bus realtime.Bus) *NetworkService {
	return &NetworkService{db: db, authz: authz, bus: bus}
}

// Create makes a network for the caller's company. The creator becomes its
// first active member so a fresh network is never adminless.
func (s *NetworkService) Create(principal *models.Principal, req *CreateNetworkRequest) (*models.Network, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid network", utils.GetValidationErrors(err))
	}
	if principal.CompanyID == nil {
		return nil, apperrors.LicenseViolation(apperrors.ReasonNoCompany, "user does not belong to a company")
	}
	if !principal.IsCompanyAdmin() && !principal.IsSuperuser {
		return nil, apperrors.PermissionDenied("admin role required")
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = models.VisibilityCompany
	}

	network := &models.Network{
		CompanyID:   *principal.CompanyID,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  visibility,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Network{}).
			Where("company_id = ? AND name = ?", network.CompanyID, network.Name).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check network name: %w", err)
		}
		if existing > 0 {
			return apperrors.Conflict("a network with this name already exists")
		}

		if err := tx.Create(network).Error; err != nil {
			return fmt.Errorf("failed to create network: %w", err)
		}

		membership := &models.NetworkMembership{
			NetworkID: network.ID,
			UserID:    principal.ID,
			Role:      models.RoleAdmin,
			Active:    true,
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("failed to create creator membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bus.Publish(realtime.CompanyTopic(network.CompanyID), realtime.EventMembershipUpdated, map[string]interface{}{
		"network_id": network.ID,
		"user_id":    principal.ID,
		"active":     true,
	})

	return network, nil
}

func (s *NetworkService) Get(principal *models.Principal, networkID uuid.UUID) (*models.Network, error) {
	network, err := s.authz.NetworkForPrincipal(principal, networkID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(principal, ActionViewNetwork, network); err != nil {
		return nil, err
	}
	return network, nil
}

func (s *NetworkService) Update(principal *models.Principal, networkID uuid.UUID, req *UpdateNetworkRequest) (*models.Network, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid network update", utils.GetValidationErrors(err))
	}

	network, err := s.authz.NetworkForPrincipal(principal, networkID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(principal, ActionManageNetwork, network); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Visibility != nil {
		updates["visibility"] = *req.Visibility
	}
	if len(updates) == 0 {
		return network, nil
	}

	if err := s.db.Model(network).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update network: %w", err)
	}

	return network, nil
}

// Delete soft-deletes the network and deactivates its memberships. History
// (requests, intruder logs) survives for audit.
func (s *NetworkService) Delete(principal *models.Principal, networkID uuid.UUID) error {
	network, err := s.authz.NetworkForPrincipal(principal, networkID)
	if err != nil {
		return err
	}
	if err := s.authz.Authorize(principal, ActionManageNetwork, network); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.NetworkMembership{}).
			Where("network_id = ?", networkID).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate memberships: %w", err)
		}
		if err := tx.Delete(network).Error; err != nil {
			return fmt.Errorf("failed to delete network: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.bus.Publish(realtime.CompanyTopic(network.CompanyID), realtime.EventMembershipUpdated, map[string]interface{}{
		"network_id": network.ID,
		"deleted":    true,
	})

	return nil
}

// List returns the company's networks with membership and pending counts.
func (s *NetworkService) List(principal *models.Principal, params utils.PaginationParams) (*utils.PaginationResult, error) {
	if principal.CompanyID == nil {
		return nil, apperrors.LicenseViolation(apperrors.ReasonNoCompany, "user does not belong to a company")
	}

	query := s.db.Model(&models.Network{}).Where("company_id = ?", *principal.CompanyID)
	if params.Search != "" {
		query = query.Where("name ILIKE ?", "%"+params.Search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count networks: %w", err)
	}

	var networks []models.Network
	query = utils.ApplySort(query, params, []string{"created_at", "name"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&networks).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch networks: %w", err)
	}

	type annotated struct {
		models.Network
		MemberCount     int64 `json:"member_count"`
		PendingRequests int64 `json:"pending_requests"`
	}

	items := make([]annotated, 0, len(networks))
	for _, network := range networks {
		item := annotated{Network: network}

		if err := s.db.Model(&models.NetworkMembership{}).
			Where("network_id = ? AND active = ?", network.ID, true).
			Count(&item.MemberCount).Error; err != nil {
			return nil, fmt.Errorf("failed to count members: %w", err)
		}
		if err := s.db.Model(&models.JoinRequest{}).
			Where("network_id = ? AND status IN ?", network.ID,
				[]models.JoinRequestStatus{models.JoinRequestPending, models.JoinRequestRecommended}).
			Count(&item.PendingRequests).Error; err != nil {
			return nil, fmt.Errorf("failed to count requests: %w", err)
		}

		items = append(items, item)
	}

	result := utils.CreatePaginationResult(items, total, params)
	return &result, nil
}

// Leave deactivates the caller's own membership, releasing their seat if it
// was their last network.
func (s *NetworkService) Leave(principal *models.Principal, networkID uuid.UUID) error {
	network, err := s.authz.NetworkForPrincipal(principal, networkID)
	if err != nil {
		return err
	}

	result := s.db.Model(&models.NetworkMembership{}).
		Where("network_id = ? AND user_id = ? AND active = ?", networkID, principal.ID, true).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to leave network: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("membership")
	}

	s.bus.Publish(realtime.NetworkTopic(network.ID), realtime.EventMembershipUpdated, map[string]interface{}{
		"network_id": network.ID,
		"user_id":    principal.ID,
		"active":     false,
	})

	return nil
}
