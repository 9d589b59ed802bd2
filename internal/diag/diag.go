// Package diag turns provider conflict reports into operator-facing text.
package diag

import "strings"

// fieldLabels maps the field names the provider reports to the labels shown
// to operators.
var fieldLabels = map[string]string{
	"vlan_id":    "业务VLAN",
	"gateway":    "业务网关",
	"dhcp_relay": "DHCP服务器中继地址",
}

// SendFailed is returned when the provider rejected a request without naming
// any conflicting field.
const SendFailed = "发送失败"

// Label returns the display label for field, or field itself when unknown.
func Label(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

// FormatConflicts renders conflicting field names as a single message.
func FormatConflicts(conflicts []string) string {
	if len(conflicts) == 0 {
		return SendFailed
	}
	labels := make([]string, 0, len(conflicts))
	for _, c := range conflicts {
		labels = append(labels, Label(c))
	}
	return "数据有冲突: " + strings.Join(labels, ", ")
}
