package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApprovalStatus is the approval dimension of a visitor record.
type ApprovalStatus string

const (
	StatusApproved ApprovalStatus = "approved"
	StatusPending  ApprovalStatus = "pending"
	StatusDenied   ApprovalStatus = "denied"
)

// Valid reports whether s is one of the known statuses.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusApproved, StatusPending, StatusDenied:
		return true
	}
	return false
}

// VisitorType classifies the purpose of a visit.
type VisitorType string

const (
	VisitorDelivery VisitorType = "delivery"
	VisitorGuest    VisitorType = "guest"
	VisitorService  VisitorType = "service"
	VisitorOther    VisitorType = "other"
)

// ParseVisitorType returns the visitor type for raw. Empty input maps to guest.
func ParseVisitorType(raw string) (VisitorType, bool) {
	switch t := VisitorType(raw); t {
	case "":
		return VisitorGuest, true
	case VisitorDelivery, VisitorGuest, VisitorService, VisitorOther:
		return t, true
	}
	return "", false
}

// Visitor is a single visit attempt or gate pass. Records are kept as an audit log.
type Visitor struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UnitOwnerID    string         `gorm:"type:varchar(36);not null;index" json:"unitOwner"`
	UnitNumber     string         `gorm:"size:32;not null;index" json:"unitNumber"`
	Name           string         `gorm:"size:128;not null" json:"name"`
	Phone          string         `gorm:"size:32;not null" json:"phone"`
	VehicleNo      string         `gorm:"size:32;not null;default:''" json:"vehicleNo"`
	VisitorType    VisitorType    `gorm:"type:varchar(16);not null;default:'guest'" json:"visitorType"`
	PreApproved    bool           `gorm:"not null;default:false" json:"preApproved"`
	ApprovalStatus ApprovalStatus `gorm:"type:varchar(16);not null;index" json:"approvalStatus"`
	ExpectedTime   *time.Time     `json:"expectedTime"`
	CheckInTime    *time.Time     `gorm:"index" json:"checkInTime"`
	CheckOutTime   *time.Time     `json:"checkOutTime"`
	QRCodeToken    *string        `gorm:"type:varchar(36);uniqueIndex" json:"qrCodeToken"`

	// Audit trail
	CreatedByID    string     `gorm:"type:varchar(36);not null" json:"createdBy"`
	CreatedByRole  Role       `gorm:"type:varchar(16);not null" json:"createdByRole"`
	ManualOverride bool       `gorm:"not null;default:false" json:"manualOverride"`
	RespondedAt    *time.Time `json:"respondedAt"`
	CheckedInByID  string     `gorm:"type:varchar(36);not null;default:''" json:"checkedInBy,omitempty"`
	CheckedOutByID string     `gorm:"type:varchar(36);not null;default:''" json:"checkedOutBy,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`

	// Associations
	UnitOwner *Resident `gorm:"foreignKey:UnitOwnerID" json:"owner,omitempty"`
}

// BeforeCreate assigns a new identifier when none is set.
func (v *Visitor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}

// OnPremises reports whether the visitor has checked in and not yet checked out.
// It is derived from the two timestamps and is never stored.
func (v *Visitor) OnPremises() bool {
	return v.CheckInTime != nil && v.CheckOutTime == nil
}
