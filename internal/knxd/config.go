package knxd

import (
	"errors"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// BackendType is how knxd reaches the KNX bus.
type BackendType string

const (
	// BackendUSB uses a USB KNX interface.
	BackendUSB BackendType = "usb"

	// BackendIPTunnel tunnels to a KNX/IP gateway.
	BackendIPTunnel BackendType = "ipt"

	// BackendIPRouting uses KNX/IP routing (multicast).
	BackendIPRouting BackendType = "ip"
)

// Defaults applied to zero Config fields.
const (
	DefaultBinary           = "/usr/bin/knxd"
	DefaultPhysicalAddress  = "0.0.1"
	DefaultClientAddresses  = "0.0.2:8"
	DefaultTunnelPort       = 3671
	DefaultMulticastAddress = "224.0.23.12"
	DefaultReadyTimeout     = 10 * time.Second
)

// ErrInvalidConfig is returned for unusable knxd settings.
var ErrInvalidConfig = errors.New("knxd: invalid configuration")

// Backend configures the bus connection.
type Backend struct {
	Type BackendType

	// Host and Port address the gateway for BackendIPTunnel.
	Host string
	Port int

	// MulticastAddress and Interface are used by BackendIPRouting.
	MulticastAddress string
	Interface        string

	// USBDevice selects a USB interface; empty auto-detects.
	USBDevice string
}

// Config describes the managed knxd instance.
type Config struct {
	Binary string

	// PhysicalAddress is knxd's individual address (area.line.device).
	PhysicalAddress string

	// ClientAddresses is the pool handed to clients (area.line.device:count).
	ClientAddresses string

	// TCPPort is where knxd listens for clients such as the control bridge.
	TCPPort uint16

	// GroupCache enables knxd's group cache (-c).
	GroupCache bool

	Backend Backend

	RestartDelay time.Duration
	MaxRestarts  int

	// ReadyTimeout bounds the wait for the TCP port after start.
	ReadyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.PhysicalAddress == "" {
		c.PhysicalAddress = DefaultPhysicalAddress
	}
	if c.ClientAddresses == "" {
		c.ClientAddresses = DefaultClientAddresses
	}
	if c.Backend.Type == BackendIPTunnel && c.Backend.Port == 0 {
		c.Backend.Port = DefaultTunnelPort
	}
	if c.Backend.Type == BackendIPRouting && c.Backend.MulticastAddress == "" {
		c.Backend.MulticastAddress = DefaultMulticastAddress
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	return c
}

var (
	individualAddressPattern = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{1,3})$`)

	// safeArgPattern keeps shell metacharacters out of knxd arguments.
	safeArgPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-/:.]+$`)
)

// Validate checks c after defaults have been applied.
func (c Config) Validate() error {
	var errs []string

	if err := validateIndividualAddress(c.PhysicalAddress); err != nil {
		errs = append(errs, "physicalAddress "+err.Error())
	}
	if err := validateClientAddresses(c.ClientAddresses); err != nil {
		errs = append(errs, "clientAddresses "+err.Error())
	}
	if c.TCPPort == 0 {
		errs = append(errs, "tcp port is required")
	}
	if err := c.Backend.validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (b Backend) validate() error {
	switch b.Type {
	case BackendUSB:
		if b.USBDevice != "" && !safeArgPattern.MatchString(b.USBDevice) {
			return fmt.Errorf("backend usbDevice %q contains invalid characters", b.USBDevice)
		}
	case BackendIPTunnel:
		if b.Host == "" {
			return fmt.Errorf("backend host is required for ipt")
		}
		if !safeArgPattern.MatchString(b.Host) {
			return fmt.Errorf("backend host %q contains invalid characters", b.Host)
		}
		if b.Port < 1 || b.Port > 65535 {
			return fmt.Errorf("backend port %d out of range", b.Port)
		}
	case BackendIPRouting:
		addr, err := netip.ParseAddr(b.MulticastAddress)
		if err != nil || !addr.IsMulticast() {
			return fmt.Errorf("backend multicastAddress %q is not a multicast address", b.MulticastAddress)
		}
		if b.Interface != "" && !safeArgPattern.MatchString(b.Interface) {
			return fmt.Errorf("backend interface %q contains invalid characters", b.Interface)
		}
	case "":
		return fmt.Errorf("backend type is required")
	default:
		return fmt.Errorf("unknown backend type %q (use usb, ipt or ip)", b.Type)
	}
	return nil
}

// validateIndividualAddress checks area.line.device with area and line
// 0-15 and device 0-255.
func validateIndividualAddress(addr string) error {
	m := individualAddressPattern.FindStringSubmatch(addr)
	if m == nil {
		return fmt.Errorf("%q must be area.line.device", addr)
	}
	limits := []int{15, 15, 255}
	for i, part := range m[1:] {
		n, _ := strconv.Atoi(part) //nolint:errcheck // Digits only
		if n > limits[i] {
			return fmt.Errorf("%q is out of range", addr)
		}
	}
	return nil
}

func validateClientAddresses(pool string) error {
	addr, count, ok := strings.Cut(pool, ":")
	if !ok {
		return fmt.Errorf("%q must be area.line.device:count", pool)
	}
	if err := validateIndividualAddress(addr); err != nil {
		return err
	}
	n, err := strconv.Atoi(count)
	if err != nil || n < 1 {
		return fmt.Errorf("%q needs a positive count", pool)
	}
	return nil
}

// Args returns the knxd command line for c.
func (c Config) Args() []string {
	args := []string{
		"-e", c.PhysicalAddress,
		"-E", c.ClientAddresses,
		fmt.Sprintf("-i%d", c.TCPPort),
	}
	if c.GroupCache {
		args = append(args, "-c")
	}
	return append(args, "-b", c.Backend.arg())
}

func (b Backend) arg() string {
	switch b.Type {
	case BackendIPTunnel:
		return fmt.Sprintf("ipt:%s:%d", b.Host, b.Port)
	case BackendIPRouting:
		if b.Interface != "" {
			return fmt.Sprintf("ip:%s@%s", b.MulticastAddress, b.Interface)
		}
		return "ip:" + b.MulticastAddress
	default:
		return "usb:" + b.USBDevice
	}
}
