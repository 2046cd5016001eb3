package model

import "time"

// PushSubscription holds the information for a resident's browser push subscription.
type PushSubscription struct {
	Endpoint   string    `gorm:"primaryKey"`
	ResidentID string    `gorm:"type:varchar(36);not null;index"`
	P256DH     string    `gorm:"column:p256dh;not null"`
	Auth       string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`

	// Associations
	Resident *Resident `gorm:"foreignKey:ResidentID;constraint:OnDelete:CASCADE"`
}
