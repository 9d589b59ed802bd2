package model

import "time"

// DeviceStatus is the network presence of an approved device.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
)

// Device is created once an approval's address has been accepted by the provider.
type Device struct {
	ID           int64        `gorm:"primaryKey" json:"id"`
	Owner        string       `gorm:"size:32;not null" json:"owner"`
	CreateTime   time.Time    `gorm:"not null" json:"create_time"`
	DepartmentID int64        `gorm:"index;not null" json:"department_id"`
	Building     int          `gorm:"not null;default:1" json:"building"`
	BusinessType int          `gorm:"not null;default:1" json:"business_type"`
	DUID         *string      `gorm:"column:duid;size:64;uniqueIndex" json:"duid"`
	MACAddress   string       `gorm:"column:mac_address;size:17;uniqueIndex;not null" json:"mac_address"`
	Status       DeviceStatus `gorm:"size:10;not null;default:online" json:"status"`
	APIResponse  string       `gorm:"column:api_response;type:text" json:"api_response"`

	// Associations
	Department *Department `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// ApprovalStatus is the decision recorded on a device approval request.
type ApprovalStatus int

const (
	ApprovalRejected ApprovalStatus = 0
	ApprovalApproved ApprovalStatus = 1
	ApprovalPending  ApprovalStatus = 2
)

func (s ApprovalStatus) String() string {
	switch s {
	case ApprovalRejected:
		return "rejected"
	case ApprovalApproved:
		return "approved"
	case ApprovalPending:
		return "pending"
	}
	return "unknown"
}

// DeviceApproval is a user's request to bring a device onto the network.
type DeviceApproval struct {
	ID           int64          `gorm:"primaryKey" json:"id"`
	Owner        string         `gorm:"size:32;not null" json:"owner"`
	DepartmentID int64          `gorm:"index;not null" json:"department_id"`
	Building     int            `gorm:"not null;default:1" json:"building"`
	BusinessType int            `gorm:"not null;default:1" json:"business_type"`
	DUID         string         `gorm:"column:duid;size:64" json:"duid"`
	MACAddress   string         `gorm:"column:mac_address;size:17;index" json:"mac_address"`
	Status       ApprovalStatus `gorm:"not null;default:2" json:"status"`

	// Associations
	Department *Department `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
