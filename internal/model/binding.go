package model

import (
	"encoding/json"
	"time"
)

// BindingStatus is the provisioning state of an address binding.
type BindingStatus string

const (
	// BindingPending means dispatched and awaiting the provider callback.
	BindingPending BindingStatus = "pending"
	// BindingBound is the terminal success reported by a callback.
	BindingBound BindingStatus = "bound"
	// BindingFailed is a dispatch-time transport or HTTP failure.
	BindingFailed BindingStatus = "failed"
	// BindingBindFailed is the terminal failure reported by a callback.
	BindingBindFailed BindingStatus = "bind_failed"
	// BindingRetrying is held only while a manual retry pass owns the record.
	BindingRetrying BindingStatus = "retrying"
	// BindingSuccess is the synchronous outcome of a successful retry pass.
	BindingSuccess BindingStatus = "success"
)

// AddressBinding maps a generated IPv6 address to a device's hardware address.
// Its ID is the record_id the provider echoes back in callbacks.
type AddressBinding struct {
	ID            int64         `gorm:"primaryKey" json:"id"`
	Owner         string        `gorm:"size:32;not null" json:"owner"`
	IPv6Address   string        `gorm:"column:ipv6_address;size:45;uniqueIndex;not null" json:"ipv6_address"`
	MACAddress    string        `gorm:"column:mac_address;size:17;index" json:"mac_address"`
	DepartmentID  *int64        `gorm:"index" json:"department_id"`
	Building      *int          `json:"building"`
	SendStatus    BindingStatus `gorm:"size:15;not null;default:pending;index" json:"send_status"`
	LastSendTime  *time.Time    `json:"last_send_time"`
	RetryCount    int           `gorm:"not null;default:0" json:"retry_count"`
	NextRetryTime *time.Time    `json:"next_retry_time"`
	APIResponse   string        `gorm:"column:api_response;type:text" json:"api_response"`
	// DispatchUntil is the unix time until which an in-flight dispatch owns
	// the record. Zero means no dispatch is in flight.
	DispatchUntil int64         `gorm:"not null;default:0" json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Associations
	Department *Department `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// BindFailure is the diagnostic archived when a callback reports failure.
type BindFailure struct {
	ErrorMessage string          `json:"error_message"`
	CallbackData json.RawMessage `json:"callback_data"`
}

// ErrorMessage returns the provider's failure message for bind_failed records.
func (b *AddressBinding) ErrorMessage() (string, bool) {
	if b.SendStatus != BindingBindFailed || b.APIResponse == "" {
		return "", false
	}
	var failure BindFailure
	if err := json.Unmarshal([]byte(b.APIResponse), &failure); err != nil {
		return "unable to decode failure diagnostic", true
	}
	if failure.ErrorMessage == "" {
		return "unknown error", true
	}
	return failure.ErrorMessage, true
}
