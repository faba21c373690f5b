// internal/services/license_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/utils"
)

type LicenseService struct {
	db *gorm.DB
}

type ProvisionLicenseRequest struct {
	CompanyID uuid.UUID          `json:"company_id" validate:"required"`
	Plan      models.LicensePlan `json:"plan" validate:"required,oneof=basic pro enterprise"`
	Seats     uint               `json:"seats" validate:"required,min=1"`
	ValidDays int                `json:"valid_days" validate:"required,min=1"`
}

func NewLicenseService(db *gorm.DB) *LicenseService {
	return &LicenseService{db: db}
}

// CheckAccess runs the license gate inside tx for a user about to occupy a
// seat. Denials are evaluated in a fixed order: company, license existence,
// expiry, then seat count. The license row is locked so two concurrent
// approvals cannot both pass the seat check.
func (s *LicenseService) CheckAccess(tx *gorm.DB, companyID *uuid.UUID, joiningUserID uuid.UUID) error {
	if companyID == nil {
		return apperrors.LicenseViolation(apperrors.ReasonNoCompany, "user does not belong to a company")
	}

	var license models.License
	query := tx.Where("company_id = ?", *companyID)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := query.First(&license).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.LicenseViolation(apperrors.ReasonNoLicense, "company has no license")
		}
		return fmt.Errorf("database error: %w", err)
	}

	if !license.IsActive() {
		return apperrors.LicenseViolation(apperrors.ReasonExpired, "company license has expired")
	}

	occupied, alreadySeated, err := s.seatUsage(tx, *companyID, joiningUserID)
	if err != nil {
		return err
	}

	if !alreadySeated && occupied+1 > int64(license.Seats) {
		return apperrors.LicenseViolation(apperrors.ReasonSeatLimitExceeded,
			fmt.Sprintf("all %d seats are occupied", license.Seats))
	}

	return nil
}

// seatUsage counts distinct company users holding at least one active
// membership, and whether joiningUserID is already among them. A user on
// several networks occupies a single seat.
func (s *LicenseService) seatUsage(tx *gorm.DB, companyID, joiningUserID uuid.UUID) (int64, bool, error) {
	var occupied int64
	if err := tx.Model(&models.NetworkMembership{}).
		Joins("JOIN users ON users.id = network_memberships.user_id").
		Where("users.company_id = ? AND network_memberships.active = ?", companyID, true).
		Distinct("network_memberships.user_id").
		Count(&occupied).Error; err != nil {
		return 0, false, fmt.Errorf("failed to count occupied seats: %w", err)
	}

	var seated int64
	if err := tx.Model(&models.NetworkMembership{}).
		Where("user_id = ? AND active = ?", joiningUserID, true).
		Count(&seated).Error; err != nil {
		return 0, false, fmt.Errorf("failed to count user memberships: %w", err)
	}

	return occupied, seated > 0, nil
}

// Provision issues a license for a company, replacing any previous one.
func (s *LicenseService) Provision(req *ProvisionLicenseRequest) (*models.License, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid license request", utils.GetValidationErrors(err))
	}

	var company models.Company
	if err := s.db.First(&company, "id = ?", req.CompanyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("company")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	key, err := models.GenerateLicenseKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate license key: %w", err)
	}

	license := &models.License{
		CompanyID:  req.CompanyID,
		Key:        key,
		Plan:       req.Plan,
		Seats:      req.Seats,
		ExpiryDate: time.Now().AddDate(0, 0, req.ValidDays),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("company_id = ?", req.CompanyID).Delete(&models.License{}).Error; err != nil {
			return fmt.Errorf("failed to retire previous license: %w", err)
		}
		if err := tx.Create(license).Error; err != nil {
			return fmt.Errorf("failed to create license: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return license, nil
}

// Renew extends the expiry of the company's current license.
func (s *LicenseService) Renew(companyID uuid.UUID, days int) (*models.License, error) {
	if days < 1 {
		return nil, apperrors.Validation("renewal days must be positive", nil)
	}

	var license models.License
	if err := s.db.Where("company_id = ?", companyID).First(&license).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("license")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	base := license.ExpiryDate
	if base.Before(time.Now()) {
		base = time.Now()
	}
	license.ExpiryDate = base.AddDate(0, 0, days)

	if err := s.db.Save(&license).Error; err != nil {
		return nil, fmt.Errorf("failed to renew license: %w", err)
	}

	return &license, nil
}

// GetByCompany returns the company's license with current seat usage.
func (s *LicenseService) GetByCompany(companyID uuid.UUID) (*models.License, int64, error) {
	var license models.License
	if err := s.db.Where("company_id = ?", companyID).First(&license).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, apperrors.NotFound("license")
		}
		return nil, 0, fmt.Errorf("database error: %w", err)
	}

	occupied, _, err := s.seatUsage(s.db, companyID, uuid.Nil)
	if err != nil {
		return nil, 0, err
	}

	return &license, occupied, nil
}
