// internal/models/network.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type Network struct {
	BaseModel
	CompanyID   uuid.UUID         `json:"company_id" gorm:"type:uuid;not null;index"`
	Name        string            `json:"name" gorm:"size:150;not null"`
	Description string            `json:"description" gorm:"type:text"`
	Visibility  NetworkVisibility `json:"visibility" gorm:"type:varchar(20);default:'company';index"`

	// Relationships
	Company      Company             `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	Memberships  []NetworkMembership `json:"memberships,omitempty" gorm:"foreignKey:NetworkID"`
	JoinRequests []JoinRequest       `json:"join_requests,omitempty" gorm:"foreignKey:NetworkID"`
}

type NetworkMembership struct {
	BaseModel
	NetworkID uuid.UUID `json:"network_id" gorm:"type:uuid;not null;uniqueIndex:idx_membership_network_user"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_membership_network_user"`
	Role      Role      `json:"role" gorm:"type:varchar(20);default:'employee'"`
	Active    bool      `json:"active" gorm:"default:true"`

	Network Network `json:"network,omitempty" gorm:"foreignKey:NetworkID"`
	User    User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

type JoinRequest struct {
	BaseModel
	NetworkID uuid.UUID         `json:"network_id" gorm:"type:uuid;not null;index:idx_join_requests_network_user"`
	UserID    uuid.UUID         `json:"user_id" gorm:"type:uuid;not null;index:idx_join_requests_network_user"`
	DeviceID  *uuid.UUID        `json:"device_id" gorm:"type:uuid"`
	IPAddress string            `json:"ip_address" gorm:"size:45"`
	Status    JoinRequestStatus `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	DecidedBy *uuid.UUID        `json:"decided_by" gorm:"type:uuid"`
	DecidedAt *time.Time        `json:"decided_at"`

	Network Network `json:"network,omitempty" gorm:"foreignKey:NetworkID"`
	User    User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Device  *Device `json:"device,omitempty" gorm:"foreignKey:DeviceID"`
	Decider *User   `json:"decider,omitempty" gorm:"foreignKey:DecidedBy"`
}
