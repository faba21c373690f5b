// internal/services/auth_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/config"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/utils"
)

type AuthService struct {
	db       *gorm.DB
	licenses *LicenseService
	jwtCfg   config.JWTConfig
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterCompanyRequest struct {
	CompanyName string `json:"company_name" validate:"required,min=2,max=255"`
	Domain      string `json:"domain" validate:"required,fqdn"`
	AdminEmail  string `json:"admin_email" validate:"required,email"`
	AdminName   string `json:"admin_name" validate:"required,max=150"`
	Password    string `json:"password" validate:"required,strong_password"`
}

type RegisterUserRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	FullName string      `json:"full_name" validate:"required,max=150"`
	Password string      `json:"password" validate:"required,strong_password"`
	Role     models.Role `json:"role" validate:"required,oneof=admin manager employee"`
}

type AuthTokens struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user"`
}

func NewAuthService(db *gorm.DB, licenses *LicenseService, jwtCfg config.JWTConfig) *AuthService {
	return &AuthService{db: db, licenses: licenses, jwtCfg: jwtCfg}
}

// Login verifies credentials and issues a token pair. Wrong email and wrong
// password are indistinguishable to the caller.
func (s *AuthService) Login(req *LoginRequest) (*AuthTokens, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid credentials payload", utils.GetValidationErrors(err))
	}

	var user models.User
	if err := s.db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.AuthenticationRequired("invalid email or password")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := user.CheckPassword(req.Password); err != nil {
		return nil, apperrors.AuthenticationRequired("invalid email or password")
	}

	now := time.Now()
	s.db.Model(&user).Update("last_login_at", now)
	user.LastLoginAt = &now

	return s.issueTokens(&user)
}

// RegisterCompany bootstraps a tenant: company, admin user, and a trial
// license in one transaction.
func (s *AuthService) RegisterCompany(req *RegisterCompanyRequest) (*AuthTokens, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid registration", utils.GetValidationErrors(err))
	}

	company := &models.Company{
		Name:   req.CompanyName,
		Domain: strings.ToLower(req.Domain),
	}
	admin := &models.User{
		Email:    strings.ToLower(req.AdminEmail),
		FullName: req.AdminName,
		Role:     models.RoleAdmin,
	}
	if err := admin.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Company{}).
			Where("name = ? OR domain = ?", company.Name, company.Domain).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check company: %w", err)
		}
		if existing > 0 {
			return apperrors.Conflict("company name or domain already registered")
		}

		if err := tx.Model(&models.User{}).Where("email = ?", admin.Email).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if existing > 0 {
			return apperrors.Conflict("email already registered")
		}

		if err := tx.Create(company).Error; err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}

		admin.CompanyID = &company.ID
		if err := tx.Create(admin).Error; err != nil {
			return fmt.Errorf("failed to create admin user: %w", err)
		}

		key, err := models.GenerateLicenseKey()
		if err != nil {
			return fmt.Errorf("failed to generate license key: %w", err)
		}
		license := &models.License{
			CompanyID:  company.ID,
			Key:        key,
			Plan:       models.LicensePlanBasic,
			Seats:      10,
			ExpiryDate: time.Now().AddDate(0, 0, 30),
		}
		if err := tx.Create(license).Error; err != nil {
			return fmt.Errorf("failed to create trial license: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.issueTokens(admin)
}

// RegisterUser lets a company admin add a member to their own company.
func (s *AuthService) RegisterUser(principal *models.Principal, req *RegisterUserRequest) (*models.User, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, apperrors.Validation("invalid registration", utils.GetValidationErrors(err))
	}
	if !principal.IsCompanyAdmin() && !principal.IsSuperuser {
		return nil, apperrors.PermissionDenied("admin role required")
	}
	if principal.CompanyID == nil {
		return nil, apperrors.LicenseViolation(apperrors.ReasonNoCompany, "user does not belong to a company")
	}

	user := &models.User{
		Email:     strings.ToLower(req.Email),
		FullName:  req.FullName,
		CompanyID: principal.CompanyID,
		Role:      req.Role,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&existing).Error; err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if existing > 0 {
			return apperrors.Conflict("email already registered")
		}
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Refresh exchanges a valid refresh token for a fresh pair.
func (s *AuthService) Refresh(refreshToken string) (*AuthTokens, error) {
	subject, err := utils.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.AuthenticationRequired("invalid refresh token")
	}

	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, apperrors.AuthenticationRequired("invalid refresh token")
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.AuthenticationRequired("account no longer exists")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return s.issueTokens(&user)
}

// Me returns the caller's full user row.
func (s *AuthService) Me(principal *models.Principal) (*models.User, error) {
	var user models.User
	if err := s.db.Preload("Company").First(&user, "id = ?", principal.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &user, nil
}

func (s *AuthService) issueTokens(user *models.User) (*AuthTokens, error) {
	access, err := utils.GenerateJWT(user, s.jwtCfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, err := utils.GenerateRefreshToken(user.ID, s.jwtCfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user,
	}, nil
}
