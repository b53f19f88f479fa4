package validation

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
)

// maxPort is the exclusive upper bound for TCP/UDP port numbers.
const maxPort = 1 << 16

// knxAddressPattern matches the start of a 3-level group address.
// Anything after the third segment is ignored, so "1/1/123x" is accepted
// here and rejected later by the strict parser.
var knxAddressPattern = regexp.MustCompile(`^\d{1,3}/\d{1,3}/\d{1,3}`)

// IsValidPort reports whether v is a usable port number.
//
// Integers of any width and decimal strings are accepted. The value must lie
// strictly between 0 and 65536. nil, zero, empty and non-numeric inputs are
// invalid.
func IsValidPort(v any) bool {
	n, ok := portNumber(v)
	return ok && n > 0 && n < maxPort
}

// portNumber converts the supported port representations to an int64.
func portNumber(v any) (int64, bool) {
	switch p := v.(type) {
	case int:
		return int64(p), true
	case int8:
		return int64(p), true
	case int16:
		return int64(p), true
	case int32:
		return int64(p), true
	case int64:
		return p, true
	case uint:
		return int64(p), p < maxPort //nolint:gosec // range checked by caller
	case uint8:
		return int64(p), true
	case uint16:
		return int64(p), true
	case uint32:
		return int64(p), true
	case uint64:
		return int64(p), p < maxPort //nolint:gosec // range checked by caller
	case string:
		s := strings.TrimSpace(p)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// IsKNXAddress reports whether v looks like a KNX 3-level group address
// ("main/middle/sub", one to three digits per level).
//
// This is a rough check. Range limits are enforced by knx.ParseGroupAddress.
func IsKNXAddress(v string) bool {
	if v == "" {
		return false
	}
	return knxAddressPattern.MatchString(v)
}

// Endpoint is a validated gateway address.
type Endpoint struct {
	Host netip.Addr
	Port uint16
}

// ParseEndpoint validates host and port and returns an Endpoint.
//
// The host must be an IP literal (IPv4 or IPv6). The port accepts the same
// representations as IsValidPort.
func ParseEndpoint(host string, port any) (Endpoint, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	if !IsValidPort(port) {
		return Endpoint{}, fmt.Errorf("%w: got %v", ErrInvalidPort, port)
	}
	n, _ := portNumber(port)

	return Endpoint{Host: addr, Port: uint16(n)}, nil //nolint:gosec // validated above
}

// String returns the endpoint in host:port form, bracketing IPv6 hosts.
func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Host, e.Port).String()
}
