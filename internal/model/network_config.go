package model

import "time"

// ConfigStatus is the provisioning state of a VLAN network configuration.
type ConfigStatus string

const (
	ConfigPending ConfigStatus = "pending"
	ConfigSent    ConfigStatus = "sent"
	ConfigSuccess ConfigStatus = "success"
	ConfigFailed  ConfigStatus = "failed"
)

// NetworkConfig is an IPv6 VLAN configuration pushed to the provider.
type NetworkConfig struct {
	ID          int64        `gorm:"primaryKey" json:"id"`
	AdminName   string       `gorm:"size:32;not null" json:"admin_name"`
	VLANID      int          `gorm:"column:vlan_id;uniqueIndex;not null" json:"vlan_id"`
	Gateway     string       `gorm:"size:64;not null" json:"gateway"`
	DHCPRelay   string       `gorm:"column:dhcp_relay;size:64;not null" json:"dhcp_relay"`
	SendStatus  ConfigStatus `gorm:"size:10;not null;default:pending" json:"send_status"`
	APIResponse string       `gorm:"column:api_response;type:text" json:"api_response"`
	CreateTime  time.Time    `gorm:"autoCreateTime" json:"create_time"`
	UpdateTime  time.Time    `gorm:"autoUpdateTime" json:"update_time"`
}
