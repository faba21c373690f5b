// internal/services/auth_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/config"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/testutil"
	"github.com/netwarden/backend/internal/utils"
)

type AuthServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *AuthService
}

func (suite *AuthServiceTestSuite) SetupTest() {
	suite.db = testutil.SetupTestDB(suite.T())
	utils.SetJWTSecret("test-secret")

	licenses := NewLicenseService(suite.db)
	suite.service = NewAuthService(suite.db, licenses, config.JWTConfig{
		SecretKey:       "test-secret",
		AccessTokenTTL:  1,
		RefreshTokenTTL: 24,
	})
}

func (suite *AuthServiceTestSuite) TearDownTest() {
	testutil.CleanupTestDB(suite.T(), suite.db)
}

func (suite *AuthServiceTestSuite) registerCompany() *AuthTokens {
	tokens, err := suite.service.RegisterCompany(&RegisterCompanyRequest{
		CompanyName: "Initech",
		Domain:      "initech.example.com",
		AdminEmail:  "Admin@Initech.example.com",
		AdminName:   "Bill Lumbergh",
		Password:    "CorrectHorse1!",
	})
	suite.Require().NoError(err)
	return tokens
}

func (suite *AuthServiceTestSuite) TestRegisterCompanyBootstrapsTenant() {
	tokens := suite.registerCompany()

	assert.NotEmpty(suite.T(), tokens.AccessToken)
	assert.NotEmpty(suite.T(), tokens.RefreshToken)
	assert.Equal(suite.T(), "admin@initech.example.com", tokens.User.Email)
	assert.Equal(suite.T(), models.RoleAdmin, tokens.User.Role)
	suite.Require().NotNil(tokens.User.CompanyID)

	// The tenant starts with a trial license.
	var license models.License
	suite.Require().NoError(suite.db.First(&license, "company_id = ?", *tokens.User.CompanyID).Error)
	assert.Equal(suite.T(), models.LicensePlanBasic, license.Plan)
	assert.Equal(suite.T(), uint(10), license.Seats)
	assert.True(suite.T(), license.IsActive())
}

func (suite *AuthServiceTestSuite) TestRegisterCompanyDuplicateDomainConflicts() {
	suite.registerCompany()

	_, err := suite.service.RegisterCompany(&RegisterCompanyRequest{
		CompanyName: "Initech Two",
		Domain:      "initech.example.com",
		AdminEmail:  "other@initech.example.com",
		AdminName:   "Peter Gibbons",
		Password:    "CorrectHorse1!",
	})
	assert.Equal(suite.T(), apperrors.KindConflict, apperrors.KindOf(err))
}

func (suite *AuthServiceTestSuite) TestRegisterCompanyRejectsWeakPassword() {
	_, err := suite.service.RegisterCompany(&RegisterCompanyRequest{
		CompanyName: "Initech",
		Domain:      "initech.example.com",
		AdminEmail:  "admin@initech.example.com",
		AdminName:   "Bill Lumbergh",
		Password:    "password",
	})
	assert.Equal(suite.T(), apperrors.KindValidation, apperrors.KindOf(err))
}

func (suite *AuthServiceTestSuite) TestLoginFailuresAreIndistinguishable() {
	suite.registerCompany()

	_, wrongPassword := suite.service.Login(&LoginRequest{
		Email:    "admin@initech.example.com",
		Password: "WrongHorse1!",
	})
	_, wrongEmail := suite.service.Login(&LoginRequest{
		Email:    "nobody@initech.example.com",
		Password: "CorrectHorse1!",
	})

	suite.Require().Error(wrongPassword)
	suite.Require().Error(wrongEmail)
	assert.Equal(suite.T(), apperrors.AsError(wrongPassword).Message, apperrors.AsError(wrongEmail).Message)
	assert.Equal(suite.T(), apperrors.KindAuthenticationRequired, apperrors.KindOf(wrongPassword))
}

func (suite *AuthServiceTestSuite) TestLoginIsCaseInsensitiveOnEmail() {
	suite.registerCompany()

	tokens, err := suite.service.Login(&LoginRequest{
		Email:    "ADMIN@initech.example.com",
		Password: "CorrectHorse1!",
	})
	suite.Require().NoError(err)
	assert.NotNil(suite.T(), tokens.User.LastLoginAt)
}

func (suite *AuthServiceTestSuite) TestRefreshIssuesNewPair() {
	tokens := suite.registerCompany()

	refreshed, err := suite.service.Refresh(tokens.RefreshToken)
	suite.Require().NoError(err)
	assert.NotEmpty(suite.T(), refreshed.AccessToken)
	assert.Equal(suite.T(), tokens.User.ID, refreshed.User.ID)

	_, err = suite.service.Refresh("not-a-token")
	assert.Equal(suite.T(), apperrors.KindAuthenticationRequired, apperrors.KindOf(err))
}

func (suite *AuthServiceTestSuite) TestRegisterUserRequiresAdmin() {
	tokens := suite.registerCompany()
	admin := tokens.User

	employee, err := suite.service.RegisterUser(testutil.Principal(admin), &RegisterUserRequest{
		Email:    "peter@initech.example.com",
		FullName: "Peter Gibbons",
		Password: "CorrectHorse1!",
		Role:     models.RoleEmployee,
	})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), admin.CompanyID, employee.CompanyID)

	_, err = suite.service.RegisterUser(testutil.Principal(employee), &RegisterUserRequest{
		Email:    "milton@initech.example.com",
		FullName: "Milton Waddams",
		Password: "CorrectHorse1!",
		Role:     models.RoleEmployee,
	})
	assert.Equal(suite.T(), apperrors.KindPermissionDenied, apperrors.KindOf(err))
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
