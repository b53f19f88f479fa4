package knxd

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestConfig_Args(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "usb auto-detect",
			cfg:  Config{TCPPort: 6720, Backend: Backend{Type: BackendUSB}},
			want: []string{"-e", "0.0.1", "-E", "0.0.2:8", "-i6720", "-b", "usb:"},
		},
		{
			name: "usb device with group cache",
			cfg:  Config{TCPPort: 6720, GroupCache: true, Backend: Backend{Type: BackendUSB, USBDevice: "1-1.2"}},
			want: []string{"-e", "0.0.1", "-E", "0.0.2:8", "-i6720", "-c", "-b", "usb:1-1.2"},
		},
		{
			name: "tunnel default port",
			cfg: Config{
				PhysicalAddress: "1.1.250",
				ClientAddresses: "1.1.240:4",
				TCPPort:         16720,
				Backend:         Backend{Type: BackendIPTunnel, Host: "192.168.1.20"},
			},
			want: []string{"-e", "1.1.250", "-E", "1.1.240:4", "-i16720", "-b", "ipt:192.168.1.20:3671"},
		},
		{
			name: "routing default multicast",
			cfg:  Config{TCPPort: 6720, Backend: Backend{Type: BackendIPRouting}},
			want: []string{"-e", "0.0.1", "-E", "0.0.2:8", "-i6720", "-b", "ip:224.0.23.12"},
		},
		{
			name: "routing on interface",
			cfg:  Config{TCPPort: 6720, Backend: Backend{Type: BackendIPRouting, Interface: "eth0"}},
			want: []string{"-e", "0.0.1", "-E", "0.0.2:8", "-i6720", "-b", "ip:224.0.23.12@eth0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg.withDefaults()
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got := cfg.Args(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() Config {
		return Config{TCPPort: 6720, Backend: Backend{Type: BackendUSB}}
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{
			name:    "physical address out of range",
			modify:  func(c *Config) { c.PhysicalAddress = "16.0.1" },
			wantErr: "physicalAddress",
		},
		{
			name:    "physical address malformed",
			modify:  func(c *Config) { c.PhysicalAddress = "0/0/1" },
			wantErr: "physicalAddress",
		},
		{
			name:    "client pool without count",
			modify:  func(c *Config) { c.ClientAddresses = "0.0.2" },
			wantErr: "clientAddresses",
		},
		{
			name:    "client pool zero count",
			modify:  func(c *Config) { c.ClientAddresses = "0.0.2:0" },
			wantErr: "clientAddresses",
		},
		{
			name:    "missing tcp port",
			modify:  func(c *Config) { c.TCPPort = 0 },
			wantErr: "tcp port",
		},
		{
			name:    "missing backend type",
			modify:  func(c *Config) { c.Backend.Type = "" },
			wantErr: "backend type is required",
		},
		{
			name:    "unknown backend type",
			modify:  func(c *Config) { c.Backend.Type = "serial" },
			wantErr: "unknown backend type",
		},
		{
			name:    "tunnel without host",
			modify:  func(c *Config) { c.Backend = Backend{Type: BackendIPTunnel} },
			wantErr: "backend host is required",
		},
		{
			name:    "tunnel host injection",
			modify:  func(c *Config) { c.Backend = Backend{Type: BackendIPTunnel, Host: "10.0.0.1;rm -rf /"} },
			wantErr: "invalid characters",
		},
		{
			name:    "usb device injection",
			modify:  func(c *Config) { c.Backend.USBDevice = "$(reboot)" },
			wantErr: "invalid characters",
		},
		{
			name:    "routing unicast address",
			modify:  func(c *Config) { c.Backend = Backend{Type: BackendIPRouting, MulticastAddress: "192.168.1.1"} },
			wantErr: "multicast",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(&cfg)
			err := cfg.withDefaults().Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
