// internal/services/license_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/testutil"
)

type LicenseServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *LicenseService
}

func (suite *LicenseServiceTestSuite) SetupTest() {
	suite.db = testutil.SetupTestDB(suite.T())
	suite.service = NewLicenseService(suite.db)
}

func (suite *LicenseServiceTestSuite) TearDownTest() {
	testutil.CleanupTestDB(suite.T(), suite.db)
}

func (suite *LicenseServiceTestSuite) checkAccess(companyID *uuid.UUID, userID uuid.UUID) error {
	return suite.db.Transaction(func(tx *gorm.DB) error {
		return suite.service.CheckAccess(tx, companyID, userID)
	})
}

func (suite *LicenseServiceTestSuite) TestDeniesUserWithoutCompany() {
	err := suite.checkAccess(nil, uuid.New())

	var e *apperrors.Error
	assert.ErrorAs(suite.T(), err, &e)
	assert.Equal(suite.T(), apperrors.KindLicenseViolation, e.Kind)
	assert.Equal(suite.T(), apperrors.ReasonNoCompany, e.Reason)
}

func (suite *LicenseServiceTestSuite) TestDeniesCompanyWithoutLicense() {
	company := &models.Company{Name: "Unlicensed", Domain: "unlicensed.example.com"}
	suite.Require().NoError(suite.db.Create(company).Error)

	err := suite.checkAccess(&company.ID, uuid.New())

	var e *apperrors.Error
	assert.ErrorAs(suite.T(), err, &e)
	assert.Equal(suite.T(), apperrors.ReasonNoLicense, e.Reason)
}

func (suite *LicenseServiceTestSuite) TestDeniesExpiredLicense() {
	company := testutil.CreateTestCompanyWithLicense(suite.T(), suite.db, 5, time.Now().AddDate(0, 0, -1))
	user := testutil.CreateTestUser(suite.T(), suite.db, company, models.RoleEmployee)

	err := suite.checkAccess(&company.ID, user.ID)

	var e *apperrors.Error
	assert.ErrorAs(suite.T(), err, &e)
	assert.Equal(suite.T(), apperrors.ReasonExpired, e.Reason)
}

func (suite *LicenseServiceTestSuite) TestDeniesWhenSeatsExhausted() {
	company := testutil.CreateTestCompanyWithLicense(suite.T(), suite.db, 2, time.Now().AddDate(0, 1, 0))
	network := testutil.CreateTestNetwork(suite.T(), suite.db, company)

	for i := 0; i < 2; i++ {
		member := testutil.CreateTestUser(suite.T(), suite.db, company, models.RoleEmployee)
		testutil.CreateTestMembership(suite.T(), suite.db, network, member)
	}

	newcomer := testutil.CreateTestUser(suite.T(), suite.db, company, models.RoleEmployee)
	err := suite.checkAccess(&company.ID, newcomer.ID)

	var e *apperrors.Error
	assert.ErrorAs(suite.T(), err, &e)
	assert.Equal(suite.T(), apperrors.ReasonSeatLimitExceeded, e.Reason)
}

func (suite *LicenseServiceTestSuite) TestSeatedUserOccupiesOneSeat() {
	company := testutil.CreateTestCompanyWithLicense(suite.T(), suite.db, 1, time.Now().AddDate(0, 1, 0))
	network := testutil.CreateTestNetwork(suite.T(), suite.db, company)

	member := testutil.CreateTestUser(suite.T(), suite.db, company, models.RoleEmployee)
	testutil.CreateTestMembership(suite.T(), suite.db, network, member)

	// The same user joining another network needs no extra seat.
	assert.NoError(suite.T(), suite.checkAccess(&company.ID, member.ID))
}

func (suite *LicenseServiceTestSuite) TestInactiveMembershipFreesSeat() {
	company := testutil.CreateTestCompanyWithLicense(suite.T(), suite.db, 1, time.Now().AddDate(0, 1, 0))
	network := testutil.CreateTestNetwork(suite.T(), suite.db, company)

	former := testutil.CreateTestUser(suite.T(), suite.db, company, models.RoleEmployee)
	membership := testutil.CreateTestMembership(suite.T(), suite.db, network, former)
	suite.Require().NoError(suite.db.Model(membership).Update("active", false).Error)

	newcomer := testutil.CreateTestUser(suite.T(), suite.db, company, models.RoleEmployee)
	assert.NoError(suite.T(), suite.checkAccess(&company.ID, newcomer.ID))
}

func (suite *LicenseServiceTestSuite) TestProvisionReplacesLicense() {
	company := testutil.CreateTestCompany(suite.T(), suite.db)

	license, err := suite.service.Provision(&ProvisionLicenseRequest{
		CompanyID: company.ID,
		Plan:      models.LicensePlanPro,
		Seats:     50,
		ValidDays: 365,
	})
	suite.Require().NoError(err)

	assert.Equal(suite.T(), models.LicensePlanPro, license.Plan)
	assert.Regexp(suite.T(), `^COMP-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`, license.Key)

	var count int64
	suite.db.Model(&models.License{}).Where("company_id = ?", company.ID).Count(&count)
	assert.Equal(suite.T(), int64(1), count)
}

func (suite *LicenseServiceTestSuite) TestRenewExtendsFromExpiry() {
	company := testutil.CreateTestCompany(suite.T(), suite.db)

	before, _, err := suite.service.GetByCompany(company.ID)
	suite.Require().NoError(err)

	renewed, err := suite.service.Renew(company.ID, 30)
	suite.Require().NoError(err)
	assert.WithinDuration(suite.T(), before.ExpiryDate.AddDate(0, 0, 30), renewed.ExpiryDate, time.Minute)
}

func (suite *LicenseServiceTestSuite) TestRenewExpiredStartsFromNow() {
	company := testutil.CreateTestCompanyWithLicense(suite.T(), suite.db, 5, time.Now().AddDate(0, 0, -10))

	renewed, err := suite.service.Renew(company.ID, 30)
	suite.Require().NoError(err)
	assert.WithinDuration(suite.T(), time.Now().AddDate(0, 0, 30), renewed.ExpiryDate, time.Minute)
}

func TestLicenseServiceSuite(t *testing.T) {
	suite.Run(t, new(LicenseServiceTestSuite))
}
