package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Subscribers watch specific spots and are notified when one becomes free.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Spots []*ParkingSpot `gorm:"many2many:subscription_spot_mapping;"`
}