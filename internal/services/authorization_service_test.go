// internal/services/authorization_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/testutil"
)

type AuthorizationServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *AuthorizationService

	company *models.Company
	network *models.Network
}

func (suite *AuthorizationServiceTestSuite) SetupTest() {
	suite.db = testutil.SetupTestDB(suite.T())
	suite.service = NewAuthorizationService(suite.db)

	suite.company = testutil.CreateTestCompany(suite.T(), suite.db)
	suite.network = testutil.CreateTestNetwork(suite.T(), suite.db, suite.company)
}

func (suite *AuthorizationServiceTestSuite) TearDownTest() {
	testutil.CleanupTestDB(suite.T(), suite.db)
}

func (suite *AuthorizationServiceTestSuite) TestNetworkScopeRequiresMembership() {
	employee := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	topic := realtime.NetworkTopic(suite.network.ID)

	// Same company is not enough for the live feed.
	err := suite.service.AuthorizeTopic(testutil.Principal(employee), topic)
	assert.Equal(suite.T(), apperrors.KindPermissionDenied, apperrors.KindOf(err))

	testutil.CreateTestMembership(suite.T(), suite.db, suite.network, employee)
	assert.NoError(suite.T(), suite.service.AuthorizeTopic(testutil.Principal(employee), topic))
}

func (suite *AuthorizationServiceTestSuite) TestNetworkScopeAllowsCompanyAdmin() {
	admin := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleAdmin)

	err := suite.service.AuthorizeTopic(testutil.Principal(admin), realtime.NetworkTopic(suite.network.ID))
	assert.NoError(suite.T(), err)
}

func (suite *AuthorizationServiceTestSuite) TestNetworkScopeCrossTenantIsNotFound() {
	other := testutil.CreateTestCompany(suite.T(), suite.db)
	outsider := testutil.CreateTestUser(suite.T(), suite.db, other, models.RoleAdmin)

	err := suite.service.AuthorizeTopic(testutil.Principal(outsider), realtime.NetworkTopic(suite.network.ID))
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))
}

func (suite *AuthorizationServiceTestSuite) TestInactiveMembershipDoesNotGrantScope() {
	employee := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	membership := testutil.CreateTestMembership(suite.T(), suite.db, suite.network, employee)
	suite.Require().NoError(suite.db.Model(membership).Update("active", false).Error)

	err := suite.service.AuthorizeTopic(testutil.Principal(employee), realtime.NetworkTopic(suite.network.ID))
	assert.Equal(suite.T(), apperrors.KindPermissionDenied, apperrors.KindOf(err))
}

func (suite *AuthorizationServiceTestSuite) TestUserScopeIsOwnerOnly() {
	employee := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)

	assert.NoError(suite.T(),
		suite.service.AuthorizeTopic(testutil.Principal(employee), realtime.UserTopic(employee.ID)))

	err := suite.service.AuthorizeTopic(testutil.Principal(employee), realtime.UserTopic(uuid.New()))
	assert.Equal(suite.T(), apperrors.KindPermissionDenied, apperrors.KindOf(err))
}

func TestAuthorizationServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthorizationServiceTestSuite))
}
