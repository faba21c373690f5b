// internal/models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	BaseModel
	Email        string     `json:"email" gorm:"uniqueIndex;size:255;not null"`
	FullName     string     `json:"full_name" gorm:"size:150"`
	PasswordHash string     `json:"-" gorm:"size:255;not null"`
	CompanyID    *uuid.UUID `json:"company_id" gorm:"type:uuid;index"`
	Role         Role       `json:"role" gorm:"type:varchar(20);default:'employee'"`
	IsSuperuser  bool       `json:"is_superuser" gorm:"default:false"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	// Relationships
	Company     *Company            `json:"company,omitempty" gorm:"foreignKey:CompanyID"`
	Memberships []NetworkMembership `json:"memberships,omitempty" gorm:"foreignKey:UserID"`
	Devices     []Device            `json:"devices,omitempty" gorm:"foreignKey:UserID"`
}

func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hashedPassword)
	return nil
}

func (u *User) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
}

func (u *User) IsCompanyAdmin() bool {
	return u.Role == RoleAdmin
}

// Principal is the identity projection carried through a request, taken from
// the session token rather than a database row.
type Principal struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	CompanyID   *uuid.UUID `json:"company_id"`
	Role        Role       `json:"role"`
	IsSuperuser bool       `json:"is_superuser"`
}

func (p *Principal) IsCompanyAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// SameCompany reports whether the principal belongs to the given company.
func (p *Principal) SameCompany(companyID uuid.UUID) bool {
	return p != nil && p.CompanyID != nil && *p.CompanyID == companyID
}
