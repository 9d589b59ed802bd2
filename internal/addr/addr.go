// Package addr derives device IPv6 addresses and validates the address-like
// inputs accepted by the provisioning workflow.
package addr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
)

var (
	// ErrRange is returned when a department, building or service number does
	// not fit its bit field.
	ErrRange = errors.New("value out of range")
	// ErrFormat is returned when a hardware address is not 12 hex digits.
	ErrFormat = errors.New("invalid hardware address")
	// ErrGateway is returned for a gateway that is not a ::1/64 IPv6 network.
	ErrGateway = errors.New("invalid gateway")
)

// Prefix is the fixed /64 every generated address lives in.
var Prefix = [8]byte{0x24, 0x0c, 0xc9, 0x01, 0x00, 0x0a, 0x00, 0x0a}

const (
	maxDepartment = 16
	maxBuilding   = 256
	maxService    = 16
)

var macSeparators = strings.NewReplacer(":", "", "-", "", ".", "")

// Generate builds the address for a device. Layout, high to low:
// 64-bit prefix, department (4b), building (8b), service (4b), MAC (48b).
func Generate(department, building, service int, mac string) (netip.Addr, error) {
	if department < 0 || department >= maxDepartment {
		return netip.Addr{}, fmt.Errorf("%w: department %d not in [0,%d)", ErrRange, department, maxDepartment)
	}
	if building < 0 || building >= maxBuilding {
		return netip.Addr{}, fmt.Errorf("%w: building %d not in [0,%d)", ErrRange, building, maxBuilding)
	}
	if service < 0 || service >= maxService {
		return netip.Addr{}, fmt.Errorf("%w: service %d not in [0,%d)", ErrRange, service, maxService)
	}

	hw, err := ParseMAC(mac)
	if err != nil {
		return netip.Addr{}, err
	}

	var b [16]byte
	copy(b[:8], Prefix[:])
	extra := uint16(department)<<12 | uint16(building)<<4 | uint16(service)
	b[8] = byte(extra >> 8)
	b[9] = byte(extra)
	copy(b[10:], hw[:])

	return netip.AddrFrom16(b), nil
}

// ParseMAC strips separators and decodes exactly six bytes.
func ParseMAC(mac string) ([6]byte, error) {
	var hw [6]byte
	digits := macSeparators.Replace(strings.TrimSpace(mac))
	if len(digits) != 12 {
		return hw, fmt.Errorf("%w: %q has %d hex digits, want 12", ErrFormat, mac, len(digits))
	}
	if _, err := hex.Decode(hw[:], []byte(digits)); err != nil {
		return hw, fmt.Errorf("%w: %q: %v", ErrFormat, mac, err)
	}
	return hw, nil
}

// ValidMAC reports whether mac decodes to a hardware address.
func ValidMAC(mac string) bool {
	if mac == "" {
		return false
	}
	_, err := ParseMAC(mac)
	return err == nil
}

// InterfaceSuffix returns the low 64 bits of an IPv6 address in exploded
// form, e.g. "30c1:0011:2233:4455". Empty when the input does not parse.
func InterfaceSuffix(ipv6 string) string {
	a, err := netip.ParseAddr(ipv6)
	if err != nil || !a.Is6() {
		return ""
	}
	b := a.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x:%02x%02x",
		b[8], b[9], b[10], b[11], b[12], b[13], b[14], b[15])
}

// ValidateGateway accepts gateways of the form "<prefix>::1/64".
func ValidateGateway(gateway string) error {
	if gateway == "" {
		return fmt.Errorf("%w: empty", ErrGateway)
	}
	if !strings.HasSuffix(gateway, "::1/64") {
		return fmt.Errorf("%w: %q must end with ::1/64", ErrGateway, gateway)
	}
	p, err := netip.ParsePrefix(gateway)
	if err != nil || !p.Addr().Is6() || p.Addr().Is4In6() {
		return fmt.Errorf("%w: %q is not an IPv6 network", ErrGateway, gateway)
	}
	return nil
}

// NormalizeMAC returns mac as lowercase colon-separated octets, the form
// hardware addresses are stored and matched in.
func NormalizeMAC(mac string) (string, error) {
	hw, err := ParseMAC(mac)
	if err != nil {
		return "", err
	}
	return net.HardwareAddr(hw[:]).String(), nil
}
