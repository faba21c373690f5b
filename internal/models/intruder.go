// internal/models/intruder.go
package models

import (
	"github.com/google/uuid"
)

// IntruderLog is an immutable detection record. Its references to network,
// device and user are weak links kept for correlation only.
type IntruderLog struct {
	BaseModel
	NetworkID  *uuid.UUID     `json:"network_id" gorm:"type:uuid;index"`
	DeviceID   *uuid.UUID     `json:"device_id" gorm:"type:uuid"`
	UserID     *uuid.UUID     `json:"user_id" gorm:"type:uuid"`
	IPAddress  string         `json:"ip_address" gorm:"size:45"`
	MacAddress string         `json:"mac_address" gorm:"size:17"`
	Status     IntruderStatus `json:"status" gorm:"type:varchar(20);default:'Detected';index"`
	Note       string         `json:"note" gorm:"type:text"`

	Network *Network `json:"network,omitempty" gorm:"foreignKey:NetworkID"`
	Device  *Device  `json:"device,omitempty" gorm:"foreignKey:DeviceID"`
	User    *User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
