// internal/models/device.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Device belongs to a user; its company is always derived through the owning
// user, never stored separately.
type Device struct {
	BaseModel
	UserID     *uuid.UUID   `json:"user_id" gorm:"type:uuid;index"`
	Name       string       `json:"name" gorm:"size:100"`
	MacAddress string       `json:"mac_address" gorm:"uniqueIndex;size:17;not null"`
	IPAddress  string       `json:"ip_address" gorm:"size:45"`
	Status     DeviceStatus `json:"status" gorm:"type:varchar(20);default:'offline';index"`
	IsBlocked  bool         `json:"is_blocked" gorm:"default:false"`
	LastSeen   *time.Time   `json:"last_seen"`

	User *User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
