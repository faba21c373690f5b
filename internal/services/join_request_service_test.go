// internal/services/join_request_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/netwarden/backend/internal/apperrors"
	"github.com/netwarden/backend/internal/models"
	"github.com/netwarden/backend/internal/realtime"
	"github.com/netwarden/backend/internal/testutil"
)

type JoinRequestServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	bus     *testutil.RecordingBus
	service *JoinRequestService

	company  *models.Company
	network  *models.Network
	admin    *models.User
	manager  *models.User
	employee *models.User
}

func (suite *JoinRequestServiceTestSuite) SetupTest() {
	suite.db = testutil.SetupTestDB(suite.T())
	suite.bus = &testutil.RecordingBus{}

	authz := NewAuthorizationService(suite.db)
	licenses := NewLicenseService(suite.db)
	notifications := NewNotificationService(suite.db, suite.bus)
	intrusions := NewIntrusionService(suite.db, notifications, authz, suite.bus)
	suite.service = NewJoinRequestService(suite.db, licenses, intrusions, notifications, authz, suite.bus)

	suite.company = testutil.CreateTestCompany(suite.T(), suite.db)
	suite.network = testutil.CreateTestNetwork(suite.T(), suite.db, suite.company)
	suite.admin = testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleAdmin)
	suite.manager = testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleManager)
	suite.employee = testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
}

func (suite *JoinRequestServiceTestSuite) TearDownTest() {
	testutil.CleanupTestDB(suite.T(), suite.db)
}

func (suite *JoinRequestServiceTestSuite) createRequest() *models.JoinRequest {
	joinRequest, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: suite.network.ID,
		IPAddress: "10.0.0.20",
	})
	suite.Require().NoError(err)
	return joinRequest
}

func (suite *JoinRequestServiceTestSuite) TestCreateStartsPending() {
	joinRequest := suite.createRequest()

	assert.Equal(suite.T(), models.JoinRequestPending, joinRequest.Status)
	assert.Equal(suite.T(), suite.employee.ID, joinRequest.UserID)
	assert.Nil(suite.T(), joinRequest.DecidedBy)

	// Staff got notified, network scope got the event.
	assert.NotEmpty(suite.T(), suite.bus.EventsOfType(realtime.EventJoinRequest))
	var notifications int64
	suite.db.Model(&models.Notification{}).Count(&notifications)
	assert.Equal(suite.T(), int64(2), notifications) // admin + manager
}

func (suite *JoinRequestServiceTestSuite) TestCreateRejectsSecondLiveRequest() {
	suite.createRequest()

	_, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: suite.network.ID,
	})
	assert.Equal(suite.T(), apperrors.KindConflict, apperrors.KindOf(err))
}

func (suite *JoinRequestServiceTestSuite) TestTerminalRequestCanBeSuperseded() {
	joinRequest := suite.createRequest()

	_, err := suite.service.Deny(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)

	// A denied request is history; a fresh one may be filed.
	again, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: suite.network.ID,
	})
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.JoinRequestPending, again.Status)
}

func (suite *JoinRequestServiceTestSuite) TestCreateAgainstForeignNetworkRecordsIntruder() {
	other := testutil.CreateTestCompany(suite.T(), suite.db)
	foreign := testutil.CreateTestNetwork(suite.T(), suite.db, other)

	_, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: foreign.ID,
		IPAddress: "203.0.113.9",
	})

	// Refused as not-found, never as forbidden.
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))

	var log models.IntruderLog
	suite.Require().NoError(suite.db.Where("network_id = ?", foreign.ID).First(&log).Error)
	assert.Equal(suite.T(), models.IntruderDetected, log.Status)
	assert.Equal(suite.T(), suite.employee.ID, *log.UserID)
	assert.Equal(suite.T(), "203.0.113.9", log.IPAddress)
}

func (suite *JoinRequestServiceTestSuite) TestCreateDeniedWhenSeatsExhausted() {
	small := testutil.CreateTestCompanyWithLicense(suite.T(), suite.db, 1, time.Now().AddDate(0, 1, 0))
	network := testutil.CreateTestNetwork(suite.T(), suite.db, small)
	seated := testutil.CreateTestUser(suite.T(), suite.db, small, models.RoleEmployee)
	testutil.CreateTestMembership(suite.T(), suite.db, network, seated)

	newcomer := testutil.CreateTestUser(suite.T(), suite.db, small, models.RoleEmployee)
	_, err := suite.service.Create(testutil.Principal(newcomer), &CreateJoinRequest{
		NetworkID: network.ID,
	})

	var e *apperrors.Error
	assert.ErrorAs(suite.T(), err, &e)
	assert.Equal(suite.T(), apperrors.KindLicenseViolation, e.Kind)
	assert.Equal(suite.T(), apperrors.ReasonSeatLimitExceeded, e.Reason)
}

func (suite *JoinRequestServiceTestSuite) TestRecommendRequiresManager() {
	joinRequest := suite.createRequest()

	_, err := suite.service.Recommend(testutil.Principal(suite.employee), joinRequest.ID)
	assert.Equal(suite.T(), apperrors.KindPermissionDenied, apperrors.KindOf(err))

	recommended, err := suite.service.Recommend(testutil.Principal(suite.manager), joinRequest.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.JoinRequestRecommended, recommended.Status)
	assert.Equal(suite.T(), suite.manager.ID, *recommended.DecidedBy)
}

func (suite *JoinRequestServiceTestSuite) TestRecommendTwiceConflicts() {
	joinRequest := suite.createRequest()

	_, err := suite.service.Recommend(testutil.Principal(suite.manager), joinRequest.ID)
	suite.Require().NoError(err)

	_, err = suite.service.Recommend(testutil.Principal(suite.manager), joinRequest.ID)
	assert.Equal(suite.T(), apperrors.KindConflict, apperrors.KindOf(err))
}

func (suite *JoinRequestServiceTestSuite) TestApproveActivatesMembership() {
	joinRequest := suite.createRequest()
	suite.bus.Reset()

	approved, err := suite.service.Approve(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.JoinRequestApproved, approved.Status)

	var membership models.NetworkMembership
	suite.Require().NoError(suite.db.
		Where("network_id = ? AND user_id = ?", suite.network.ID, suite.employee.ID).
		First(&membership).Error)
	assert.True(suite.T(), membership.Active)

	assert.NotEmpty(suite.T(), suite.bus.EventsOfType(realtime.EventMembershipUpdated))
	assert.NotEmpty(suite.T(), suite.bus.EventsOfType(realtime.EventNotification))
}

func (suite *JoinRequestServiceTestSuite) TestApproveRequiresAdmin() {
	joinRequest := suite.createRequest()

	_, err := suite.service.Approve(testutil.Principal(suite.manager), joinRequest.ID)
	assert.Equal(suite.T(), apperrors.KindPermissionDenied, apperrors.KindOf(err))
}

func (suite *JoinRequestServiceTestSuite) TestApproveIsIdempotentlyGuarded() {
	joinRequest := suite.createRequest()

	_, err := suite.service.Approve(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)

	// A second decision on a terminal request is a conflict, and the
	// membership is not duplicated.
	_, err = suite.service.Approve(testutil.Principal(suite.admin), joinRequest.ID)
	assert.Equal(suite.T(), apperrors.KindConflict, apperrors.KindOf(err))

	_, err = suite.service.Deny(testutil.Principal(suite.admin), joinRequest.ID)
	assert.Equal(suite.T(), apperrors.KindConflict, apperrors.KindOf(err))

	var memberships int64
	suite.db.Model(&models.NetworkMembership{}).
		Where("network_id = ? AND user_id = ?", suite.network.ID, suite.employee.ID).
		Count(&memberships)
	assert.Equal(suite.T(), int64(1), memberships)
}

func (suite *JoinRequestServiceTestSuite) TestApproveRecommendedRequest() {
	joinRequest := suite.createRequest()

	_, err := suite.service.Recommend(testutil.Principal(suite.manager), joinRequest.ID)
	suite.Require().NoError(err)

	approved, err := suite.service.Approve(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.JoinRequestApproved, approved.Status)
}

func (suite *JoinRequestServiceTestSuite) TestCreateMarksDevicePending() {
	device := testutil.CreateTestDevice(suite.T(), suite.db, suite.employee, models.DeviceOffline)

	_, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: suite.network.ID,
		DeviceID:  &device.ID,
	})
	suite.Require().NoError(err)

	var refreshed models.Device
	suite.Require().NoError(suite.db.First(&refreshed, "id = ?", device.ID).Error)
	assert.Equal(suite.T(), models.DevicePending, refreshed.Status)
	assert.NotEmpty(suite.T(), suite.bus.EventsOfType(realtime.EventDeviceState))
}

func (suite *JoinRequestServiceTestSuite) TestDenyTakesDeviceOffline() {
	device := testutil.CreateTestDevice(suite.T(), suite.db, suite.employee, models.DeviceOffline)

	joinRequest, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: suite.network.ID,
		DeviceID:  &device.ID,
	})
	suite.Require().NoError(err)
	suite.bus.Reset()

	_, err = suite.service.Deny(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)

	var refreshed models.Device
	suite.Require().NoError(suite.db.First(&refreshed, "id = ?", device.ID).Error)
	assert.Equal(suite.T(), models.DeviceOffline, refreshed.Status)
	assert.NotEmpty(suite.T(), suite.bus.EventsOfType(realtime.EventDeviceState))
}

func (suite *JoinRequestServiceTestSuite) TestCancelTakesDeviceOffline() {
	device := testutil.CreateTestDevice(suite.T(), suite.db, suite.employee, models.DeviceOnline)

	joinRequest, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: suite.network.ID,
		DeviceID:  &device.ID,
	})
	suite.Require().NoError(err)

	_, err = suite.service.Cancel(testutil.Principal(suite.employee), joinRequest.ID)
	suite.Require().NoError(err)

	var refreshed models.Device
	suite.Require().NoError(suite.db.First(&refreshed, "id = ?", device.ID).Error)
	assert.Equal(suite.T(), models.DeviceOffline, refreshed.Status)
}

func (suite *JoinRequestServiceTestSuite) TestApproveBringsRequestDeviceOnline() {
	device := testutil.CreateTestDevice(suite.T(), suite.db, suite.employee, models.DevicePending)

	joinRequest, err := suite.service.Create(testutil.Principal(suite.employee), &CreateJoinRequest{
		NetworkID: suite.network.ID,
		DeviceID:  &device.ID,
	})
	suite.Require().NoError(err)

	_, err = suite.service.Approve(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)

	var refreshed models.Device
	suite.Require().NoError(suite.db.First(&refreshed, "id = ?", device.ID).Error)
	assert.Equal(suite.T(), models.DeviceOnline, refreshed.Status)
}

func (suite *JoinRequestServiceTestSuite) TestApproveSeatRace() {
	small := testutil.CreateTestCompanyWithLicense(suite.T(), suite.db, 1, time.Now().AddDate(0, 1, 0))
	network := testutil.CreateTestNetwork(suite.T(), suite.db, small)
	admin := testutil.CreateTestUser(suite.T(), suite.db, small, models.RoleAdmin)
	first := testutil.CreateTestUser(suite.T(), suite.db, small, models.RoleEmployee)
	second := testutil.CreateTestUser(suite.T(), suite.db, small, models.RoleEmployee)

	reqA, err := suite.service.Create(testutil.Principal(first), &CreateJoinRequest{NetworkID: network.ID})
	suite.Require().NoError(err)
	reqB, err := suite.service.Create(testutil.Principal(second), &CreateJoinRequest{NetworkID: network.ID})
	suite.Require().NoError(err)

	_, err = suite.service.Approve(testutil.Principal(admin), reqA.ID)
	suite.Require().NoError(err)

	// The last seat is taken; the second approval hits the license gate.
	_, err = suite.service.Approve(testutil.Principal(admin), reqB.ID)
	var e *apperrors.Error
	assert.ErrorAs(suite.T(), err, &e)
	assert.Equal(suite.T(), apperrors.ReasonSeatLimitExceeded, e.Reason)
}

func (suite *JoinRequestServiceTestSuite) TestApproveMembershipRoleIsEmployee() {
	// Joining grants an employee membership regardless of company role.
	joinRequest, err := suite.service.Create(testutil.Principal(suite.manager), &CreateJoinRequest{
		NetworkID: suite.network.ID,
	})
	suite.Require().NoError(err)

	_, err = suite.service.Approve(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)

	var membership models.NetworkMembership
	suite.Require().NoError(suite.db.
		Where("network_id = ? AND user_id = ?", suite.network.ID, suite.manager.ID).
		First(&membership).Error)
	assert.Equal(suite.T(), models.RoleEmployee, membership.Role)
}

func (suite *JoinRequestServiceTestSuite) TestCancelNotifiesNetworkStaff() {
	testutil.CreateTestMembership(suite.T(), suite.db, suite.network, suite.manager)
	joinRequest := suite.createRequest()

	var before int64
	suite.db.Model(&models.Notification{}).Where("user_id = ?", suite.manager.ID).Count(&before)

	_, err := suite.service.Cancel(testutil.Principal(suite.employee), joinRequest.ID)
	suite.Require().NoError(err)

	var after int64
	suite.db.Model(&models.Notification{}).Where("user_id = ?", suite.manager.ID).Count(&after)
	assert.Equal(suite.T(), before+1, after)
}

func (suite *JoinRequestServiceTestSuite) TestCancelOnlyByRequester() {
	joinRequest := suite.createRequest()

	other := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	_, err := suite.service.Cancel(testutil.Principal(other), joinRequest.ID)
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))

	cancelled, err := suite.service.Cancel(testutil.Principal(suite.employee), joinRequest.ID)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), models.JoinRequestCancelled, cancelled.Status)
}

func (suite *JoinRequestServiceTestSuite) TestDecisionFromForeignCompanyIsNotFound() {
	joinRequest := suite.createRequest()

	other := testutil.CreateTestCompany(suite.T(), suite.db)
	foreignAdmin := testutil.CreateTestUser(suite.T(), suite.db, other, models.RoleAdmin)

	_, err := suite.service.Approve(testutil.Principal(foreignAdmin), joinRequest.ID)
	assert.Equal(suite.T(), apperrors.KindNotFound, apperrors.KindOf(err))
}

func (suite *JoinRequestServiceTestSuite) TestListFiltersByStatus() {
	joinRequest := suite.createRequest()
	_, err := suite.service.Deny(testutil.Principal(suite.admin), joinRequest.ID)
	suite.Require().NoError(err)

	other := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	_, err = suite.service.Create(testutil.Principal(other), &CreateJoinRequest{NetworkID: suite.network.ID})
	suite.Require().NoError(err)

	params := paginationDefaults()
	params.Status = string(models.JoinRequestPending)
	result, err := suite.service.List(testutil.Principal(suite.admin), suite.network.ID, params)
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), result.Total)
}

func (suite *JoinRequestServiceTestSuite) TestListMineReturnsOnlyOwnRequests() {
	mine := suite.createRequest()

	other := testutil.CreateTestUser(suite.T(), suite.db, suite.company, models.RoleEmployee)
	_, err := suite.service.Create(testutil.Principal(other), &CreateJoinRequest{NetworkID: suite.network.ID})
	suite.Require().NoError(err)

	result, err := suite.service.ListMine(testutil.Principal(suite.employee), paginationDefaults())
	suite.Require().NoError(err)
	assert.Equal(suite.T(), int64(1), result.Total)

	requests := result.Data.([]models.JoinRequest)
	suite.Require().Len(requests, 1)
	assert.Equal(suite.T(), mine.ID, requests[0].ID)
	assert.Equal(suite.T(), suite.network.ID, requests[0].Network.ID)
}

func TestJoinRequestServiceSuite(t *testing.T) {
	suite.Run(t, new(JoinRequestServiceTestSuite))
}
