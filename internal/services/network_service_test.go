// internal/services/network_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/testutil"
)

type NetworkServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	bus     *testutil.RecordingBus
	service *NetworkService

	company *models.Company
	admin   *models.User
}

func (suite *NetworkServiceTestSuite) SetupTest() {
	suite.db = testutil.SetupTestDB(suite.T())
	suite.bus = &testutil.RecordingBus{}

	authz := NewAuthorizationService(suite.db)
	suite.service = NewNetworkService(suite.db, authz, suite.bus)

	suite.company = testutil.CreateTestCompany(suite.T(), suite.db)
	suite.admin = testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleAdmin)
}

func (suite *NetworkServiceTestSuite) TearDownTest() {
	testutil.CleanupTestDB(suite.T(), suite.db)
}

func (suite *NetworkServiceTestSuite) TestCreateMakesCreatorFirstMember() {
	network, err := suite.service.Create(testutil.Principal(suite.admin), &CreateNetworkRequest{
		Name: "Engineering",
	})
	suite.Require().NoError(err)

	assert.Equal(suite.T(), suite.company.ID, network.CompanyID)
	assert.Equal(suite.T(), models.VisibilityCompany, network.Visibility)

	var membership models.NetworkMembership
	suite.Require().NoError(suite.db.
		Where("network_id = ? AND user_id = ?", network.ID, suite.admin.ID).
		First(&membership).Error)
	assert.True(suite.T(), membership.Active)
	assert.Equal(suite.T(), models.RoleAdmin, membership.Role)

	assert.NotEmpty(suite.T(), suite.bus.EventsOfType(realtime.EventMembershipUpdated))
}

func (suite *NetworkServiceTestSuite) TestCreateRequiresAdmin() {
	employee := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)

	_, err := suite.service.Create(testutil.Principal(employee), &CreateNetworkRequest{Name: "Shadow"})
	assert.Equal(suite.T(), apperrors.KindPermissionDenied, apperrors.KindOf(err))
}

func (suite *NetworkServiceTestSuite) TestCreateDuplicateNameConflicts() {
	_, err := suite.service.Create(testutil.Principal(suite.admin), &CreateNetworkRequest{Name: "Engineering"})
	suite.Require().NoError(err)

	_, err = suite.service.Create(testutil.Principal(suite.admin), &CreateNetworkRequest{Name: "Engineering"})
	assert.Equal(suite.T(), apperrors.KindConflict, apperrors.KindOf(err))
}

func (suite *NetworkServiceTestSuite) TestGetAcrossCompaniesIsNotFound() {
	other := testutil.CreateTestCompany(suite.T(), suite.db)
	foreign := testutil.CreateTestNetwork(suite.T(), suite.db, other)

	_, err := suite.service.Get(testutil.Principal(suite.admin), foreign.ID)
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))
}

func (suite *NetworkServiceTestSuite) TestUpdateIsPartial() {
	network := testutil.CreateTestNetwork(suite.T(), suite.db, suite.company)

	name := "Renamed"
	updated, err := suite.service.Update(testutil.Principal(suite.admin), network.ID, &UpdateNetworkRequest{
		Name: &name,
	})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), "Renamed", updated.Name)
	assert.Equal(suite.T(), network.Visibility, updated.Visibility)
}

func (suite *NetworkServiceTestSuite) TestDeleteDeactivatesMemberships() {
	network := testutil.CreateTestNetwork(suite.T(), suite.db, suite.company)
	member := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	testutil.CreateTestMembership(suite.T(), suite.db, network, member)

	suite.Require().NoError(suite.service.Delete(testutil.Principal(suite.admin), network.ID))

	var active int64
	suite.db.Model(&models.NetworkMembership{}).
		Where("network_id = ? AND active = ?", network.ID, true).
		Count(&active)
	assert.Zero(suite.T(), active)

	// Soft delete: the row survives for audit.
	var count int64
	suite.db.Unscoped().Model(&models.Network{}).Where("id = ?", network.ID).Count(&count)
	assert.Equal(suite.T(), int64(1), count)
}

func (suite *NetworkServiceTestSuite) TestLeaveReleasesMembership() {
	network := testutil.CreateTestNetwork(suite.T(), suite.db, suite.company)
	member := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	testutil.CreateTestMembership(suite.T(), suite.db, network, member)

	suite.Require().NoError(suite.service.Leave(testutil.Principal(member), network.ID))

	// Leaving twice finds nothing to deactivate.
	err := suite.service.Leave(testutil.Principal(member), network.ID)
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))
}

func (suite *NetworkServiceTestSuite) TestListCountsMembersAndRequests() {
	network := testutil.CreateTestNetwork(suite.T(), suite.db, suite.company)
	member := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	testutil.CreateTestMembership(suite.T(), suite.db, network, member)

	result, err := suite.service.List(testutil.Principal(suite.admin), paginationDefaults())
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), result.Total)
}

func TestNetworkServiceSuite(t *testing.T) {
	suite.Run(t, new(NetworkServiceTestSuite))
}
