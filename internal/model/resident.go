package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the resolved role of an acting identity.
type Role string

const (
	RoleResident Role = "resident"
	RoleGuard    Role = "guard"
	RoleAdmin    Role = "admin"
)

// ParseRole returns the role named by raw.
func ParseRole(raw string) (Role, bool) {
	switch r := Role(raw); r {
	case RoleResident, RoleGuard, RoleAdmin:
		return r, true
	}
	return "", false
}

// Resident is a local mirror of an account from the upstream directory.
// Guards and admins are mirrored too; only residents own units.
type Resident struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name           string    `gorm:"size:128;not null" json:"name"`
	Role           Role      `gorm:"type:varchar(16);not null;default:'resident';index:idx_residents_role_unit" json:"role"`
	UnitNumber     string    `gorm:"size:32;index:idx_residents_role_unit" json:"unitNumber"`
	Phone          string    `gorm:"size:32;not null" json:"phone"`
	PhoneSecondary string    `gorm:"size:32;not null;default:''" json:"phoneSecondary"`
	CreatedAt      time.Time `gorm:"not null" json:"-"`
	UpdatedAt      time.Time `gorm:"not null" json:"-"`
}

// BeforeCreate assigns a new identifier when none is set.
func (r *Resident) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
