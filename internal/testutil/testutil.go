// internal/testutil/testutil.go
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/netwarden/backend/internal/models"
)

// SetupTestDB creates an in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Company{},
		&models.License{},
		&models.User{},
		&models.Network{},
		&models.NetworkMembership{},
		&models.JoinRequest{},
		&models.Device{},
		&models.IntruderLog{},
		&models.Notification{},
		&models.AuditLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// CleanupTestDB closes the test database connection.
func CleanupTestDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Logf("warning: failed to get sql.DB: %v", err)
		return
	}
	sqlDB.Close()
}

// CreateTestCompany creates a company with a valid 5-seat license.
func CreateTestCompany(t *testing.T, db *gorm.DB) *models.Company {
	t.Helper()

	suffix := uuid.New().String()[:8]
	company := &models.Company{
		Name:   "Test Company " + suffix,
		Domain: fmt.Sprintf("test-%s.example.com", suffix),
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}

	key, err := models.GenerateLicenseKey()
	if err != nil {
		t.Fatalf("failed to generate license key: %v", err)
	}
	license := &models.License{
		CompanyID:  company.ID,
		Key:        key,
		Plan:       models.LicensePlanBasic,
		Seats:      5,
		ExpiryDate: time.Now().AddDate(0, 1, 0),
	}
	if err := db.Create(license).Error; err != nil {
		t.Fatalf("failed to create test license: %v", err)
	}
	company.License = license

	return company
}

// CreateTestCompanyWithLicense creates a company with explicit seat count
// and expiry, for license gate tests.
func CreateTestCompanyWithLicense(t *testing.T, db *gorm.DB, seats uint, expiry time.Time) *models.Company {
	t.Helper()

	suffix := uuid.New().String()[:8]
	company := &models.Company{
		Name:   "Test Company " + suffix,
		Domain: fmt.Sprintf("test-%s.example.com", suffix),
	}
	if err := db.Create(company).Error; err != nil {
		t.Fatalf("failed to create test company: %v", err)
	}

	key, err := models.GenerateLicenseKey()
	if err != nil {
		t.Fatalf("failed to generate license key: %v", err)
	}
	license := &models.License{
		CompanyID:  company.ID,
		Key:        key,
		Plan:       models.LicensePlanBasic,
		Seats:      seats,
		ExpiryDate: expiry,
	}
	if err := db.Create(license).Error; err != nil {
		t.Fatalf("failed to create test license: %v", err)
	}
	company.License = license

	return company
}

// CreateTestUser creates a company user with the given role.
func CreateTestUser(t *testing.T, db *gorm.DB, company *models.Company, role models.Role) *models.User {
	t.Helper()

	user := &models.User{
		Email:    fmt.Sprintf("user-%s@example.com", uuid.New().String()[:8]),
		FullName: "Test User",
		Role:     role,
	}
	if company != nil {
		user.CompanyID = &company.ID
	}
	if err := user.SetPassword("TestPass123!"); err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// Principal builds the identity projection for a stored user.
func Principal(user *models.User) *models.Principal {
	return &models.Principal{
		ID:          user.ID,
		Email:       user.Email,
		CompanyID:   user.CompanyID,
		Role:        user.Role,
		IsSuperuser: user.IsSuperuser,
	}
}

// CreateTestNetwork creates a network for the company.
func CreateTestNetwork(t *testing.T, db *gorm.DB, company *models.Company) *models.Network {
	t.Helper()

	network := &models.Network{
		CompanyID:  company.ID,
		Name:       "Test Network " + uuid.New().String()[:8],
		Visibility: models.VisibilityCompany,
	}
	if err := db.Create(network).Error; err != nil {
		t.Fatalf("failed to create test network: %v", err)
	}

	return network
}

// CreateTestMembership makes user an active member of network.
func CreateTestMembership(t *testing.T, db *gorm.DB, network *models.Network, user *models.User) *models.NetworkMembership {
	t.Helper()

	membership := &models.NetworkMembership{
		NetworkID: network.ID,
		UserID:    user.ID,
		Role:      user.Role,
		Active:    true,
	}
	if err := db.Create(membership).Error; err != nil {
		t.Fatalf("failed to create test membership: %v", err)
	}

	return membership
}

// CreateTestDevice registers a device for the user.
func CreateTestDevice(t *testing.T, db *gorm.DB, user *models.User, status models.DeviceStatus) *models.Device {
	t.Helper()

	mac := fmt.Sprintf("aa:bb:cc:%02x:%02x:%02x",
		uuid.New().ID()%256, uuid.New().ID()%256, uuid.New().ID()%256)
	now := time.Now()
	device := &models.Device{
		UserID:     &user.ID,
		Name:       "Test Device",
		MacAddress: mac,
		IPAddress:  "10.0.0.10",
		Status:     status,
		LastSeen:   &now,
	}
	if err := db.Create(device).Error; err != nil {
		t.Fatalf("failed to create test device: %v", err)
	}

	return device
}
