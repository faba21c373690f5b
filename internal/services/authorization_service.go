// internal/services/authorization_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
)

// Action is a named capability checked against a network scope.
type Action string

const (
	ActionViewNetwork      Action = "network.view"
	ActionManageNetwork    Action = "network.manage"
	ActionRequestJoin      Action = "join_request.create"
	ActionRecommendRequest Action = "join_request.recommend"
	ActionDecideRequest    Action = "join_request.decide"
	ActionBlockDevice      Action = "device.block"
	ActionManageIntruders  Action = "intruder.manage"
)

// AuthorizationService is the single decision point for HTTP handlers,
// realtime subscriptions and realtime commands.
type AuthorizationService struct {
	db *gorm.DB
}

func NewAuthorizationService(db *gorm.DB) *AuthorizationService {
	return &AuthorizationService{db: db}
}

// NetworkForPrincipal loads a network through the tenant boundary. A network
// belonging to another company is reported as not found, never as forbidden.
func (s *AuthorizationService) NetworkForPrincipal(principal *models.Principal, networkID uuid.UUID) (*models.Network, error) {
	var network models.Network
	if err := s.db.First(&network, "id = ?", networkID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("network")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !principal.IsSuperuser && !principal.SameCompany(network.CompanyID) {
		return nil, apperrors.NotFound("network")
	}

	return &network, nil
}

// Authorize decides whether principal may perform action on network.
func (s *AuthorizationService) Authorize(principal *models.Principal, action Action, network *models.Network) error {
	if principal == nil {
		return apperrors.AuthenticationRequired("")
	}
	if principal.IsSuperuser {
		return nil
	}
	if !principal.SameCompany(network.CompanyID) {
		return apperrors.NotFound("network")
	}

	switch action {
	case ActionViewNetwork, ActionRequestJoin:
		return nil

	case ActionRecommendRequest, ActionManageIntruders:
		if principal.Role == models.RoleManager || principal.IsCompanyAdmin() {
			return nil
		}
		return apperrors.PermissionDenied("manager role required")

	case ActionManageNetwork, ActionDecideRequest, ActionBlockDevice:
		if principal.IsCompanyAdmin() {
			return nil
		}
		return apperrors.PermissionDenied("admin role required")

	default:
		return apperrors.PermissionDenied(fmt.Sprintf("unknown action %q", action))
	}
}

// AuthorizeTopic decides whether principal may subscribe to a broadcast
// scope. The rules mirror the corresponding read surface: a scope you could
// not GET is a scope you cannot subscribe to.
func (s *AuthorizationService) AuthorizeTopic(principal *models.Principal, topic realtime.Topic) error {
	if principal == nil {
		return apperrors.AuthenticationRequired("")
	}

	resourceID, err := topic.ResourceID()
	if err != nil {
		return apperrors.Validation("invalid scope", nil)
	}

	if principal.IsSuperuser {
		return nil
	}

	switch topic.Kind() {
	case "user":
		if resourceID == principal.ID {
			return nil
		}
		return apperrors.PermissionDenied("cannot subscribe to another user's scope")

	case "company":
		if principal.SameCompany(resourceID) {
			return nil
		}
		return apperrors.NotFound("company")

	case "network":
		network, err := s.NetworkForPrincipal(principal, resourceID)
		if err != nil {
			return err
		}
		// The live feed is narrower than the read surface: only company
		// admins and active members of the network itself may follow it.
		if principal.IsCompanyAdmin() {
			return nil
		}
		var member int64
		if err := s.db.Model(&models.NetworkMembership{}).
			Where("network_id = ? AND user_id = ? AND active = ?", network.ID, principal.ID, true).
			Count(&member).Error; err != nil {
			return fmt.Errorf("failed to check membership: %w", err)
		}
		if member == 0 {
			return apperrors.PermissionDenied("network membership required")
		}
		return nil

	default:
		return apperrors.Validation("invalid scope", nil)
	}
}

// CompanyAdminIDs returns the user ids that receive administrative
// notifications for a company.
func (s *AuthorizationService) CompanyAdminIDs(companyID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.Model(&models.User{}).
		Where("company_id = ? AND role = ?", companyID, models.RoleAdmin).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load company admins: %w", err)
	}
	return ids, nil
}

// NetworkStaffIDs returns the user ids holding an active admin or manager
// membership on a network.
func (s *AuthorizationService) NetworkStaffIDs(networkID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.Model(&models.NetworkMembership{}).
		Where("network_id = ? AND active = ? AND role IN ?", networkID, true,
			[]models.Role{models.RoleAdmin, models.RoleManager}).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load network staff: %w", err)
	}
	return ids, nil
}

// CompanyStaffIDs returns admins and managers of a company.
func (s *AuthorizationService) CompanyStaffIDs(companyID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := s.db.Model(&models.User{}).
		Where("company_id = ? AND role IN ?", companyID, []models.Role{models.RoleAdmin, models.RoleManager}).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to load company staff: %w", err)
	}
	return ids, nil
}
