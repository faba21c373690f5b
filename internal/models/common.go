// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the primary key; generating it application-side keeps
// the schema portable between postgres and the sqlite test fixture.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return nil
	}
}

// Enums
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleEmployee Role = "employee"
)

type LicensePlan string

const (
	LicensePlanBasic      LicensePlan = "basic"
	LicensePlanPro        LicensePlan = "pro"
	LicensePlanEnterprise LicensePlan = "enterprise"
)

type NetworkVisibility string

const (
	VisibilityCompany NetworkVisibility = "company"
	VisibilityInvite  NetworkVisibility = "invite"
	VisibilityPublic  NetworkVisibility = "public"
)

type JoinRequestStatus string

const (
	JoinRequestPending     JoinRequestStatus = "pending"
	JoinRequestRecommended JoinRequestStatus = "recommended"
	JoinRequestApproved    JoinRequestStatus = "approved"
	JoinRequestDenied      JoinRequestStatus = "denied"
	JoinRequestCancelled   JoinRequestStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transition.
func (s JoinRequestStatus) IsTerminal() bool {
	switch s {
	case JoinRequestApproved, JoinRequestDenied, JoinRequestCancelled:
		return true
	}
	return false
}

type DeviceStatus string

const (
	DeviceOffline DeviceStatus = "offline"
	DevicePending DeviceStatus = "pending"
	DeviceOnline  DeviceStatus = "online"
)

type IntruderStatus string

const (
	IntruderDetected     IntruderStatus = "Detected"
	IntruderRead         IntruderStatus = "Read"
	IntruderAcknowledged IntruderStatus = "Acknowledged"
	IntruderEscalated    IntruderStatus = "Escalated"
)

var intruderStatusRank = map[IntruderStatus]int{
	IntruderDetected:     0,
	IntruderRead:         1,
	IntruderAcknowledged: 2,
	IntruderEscalated:    2,
}

// CanAdvanceTo enforces the forward-only intruder lifecycle.
func (s IntruderStatus) CanAdvanceTo(to IntruderStatus) bool {
	from, ok := intruderStatusRank[s]
	if !ok {
		return false
	}
	next, ok := intruderStatusRank[to]
	if !ok {
		return false
	}
	return next > from
}
