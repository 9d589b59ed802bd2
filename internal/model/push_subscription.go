package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// An empty Owner receives the outcome of every binding.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	Owner     string    `gorm:"size:32;index" json:"owner"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
