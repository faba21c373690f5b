// internal/models/company.go
package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type Company struct {
	BaseModel
	Name   string `json:"name" gorm:"uniqueIndex;size:255;not null"`
	Domain string `json:"domain" gorm:"uniqueIndex;size:255;not null"`

	// Relationships
	License  *License  `json:"license,omitempty" gorm:"foreignKey:CompanyID"`
	Networks []Network `json:"networks,omitempty" gorm:"foreignKey:CompanyID"`
	Users    []User    `json:"users,omitempty" gorm:"foreignKey:CompanyID"`
}

type License struct {
	BaseModel
	CompanyID  uuid.UUID   `json:"company_id" gorm:"type:uuid;uniqueIndex;not null"`
	Key        string      `json:"key" gorm:"size:64;not null"`
	Plan       LicensePlan `json:"plan" gorm:"type:varchar(20);default:'basic'"`
	Seats      uint        `json:"seats" gorm:"not null;default:10"`
	ExpiryDate time.Time   `json:"expiry_date" gorm:"not null"`

	Company Company `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
}

// IsActive reports whether the license has not expired.
func (l *License) IsActive() bool {
	return !l.ExpiryDate.Before(time.Now())
}

// GenerateLicenseKey produces a key like COMP-XXXX-YYYY-ZZZZ.
func GenerateLicenseKey() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	parts := make([]string, 3)
	for i := range parts {
		b := make([]byte, 4)
		for j := range b {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
			if err != nil {
				return "", err
			}
			b[j] = charset[n.Int64()]
		}
		parts[i] = string(b)
	}
	return fmt.Sprintf("COMP-%s-%s-%s", parts[0], parts[1], parts[2]), nil
}
