package validation

import (
	"errors"
	"testing"
)

func TestIsKNXAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "short segments", input: "1/1/123", want: true},
		{name: "three digit segments", input: "111/222/123", want: true},
		{name: "segment too long", input: "1/1111/123", want: false},
		{name: "wrong separator", input: "1.1.123", want: false},
		{name: "empty", input: "", want: false},
		{name: "two levels", input: "1/2", want: false},
		{name: "trailing garbage accepted", input: "1/1/123garbage", want: true},
		{name: "leading garbage rejected", input: "x1/1/1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsKNXAddress(tt.input); got != tt.want {
				t.Errorf("IsKNXAddress(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsValidPort(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  bool
	}{
		{name: "int lower bound", input: 1, want: true},
		{name: "int 65000", input: 65000, want: true},
		{name: "int max", input: 65535, want: true},
		{name: "string 1", input: "1", want: true},
		{name: "string 65000", input: "65000", want: true},
		{name: "uint16", input: uint16(6720), want: true},
		{name: "int zero", input: 0, want: false},
		{name: "int too large", input: 65536, want: false},
		{name: "negative", input: -1, want: false},
		{name: "string too large", input: "65536", want: false},
		{name: "empty string", input: "", want: false},
		{name: "nil", input: nil, want: false},
		{name: "non-numeric string", input: "http", want: false},
		{name: "float unsupported", input: 80.0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPort(tt.input); got != tt.want {
				t.Errorf("IsValidPort(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		port    any
		want    string
		wantErr error
	}{
		{name: "ipv4 with string port", host: "172.16.0.1", port: "6720", want: "172.16.0.1:6720"},
		{name: "ipv4 with int port", host: "10.0.0.2", port: 3671, want: "10.0.0.2:3671"},
		{name: "ipv6", host: "::1", port: 6720, want: "[::1]:6720"},
		{name: "hostname rejected", host: "knxd.local", port: 6720, wantErr: ErrInvalidHost},
		{name: "empty host", host: "", port: 6720, wantErr: ErrInvalidHost},
		{name: "bad port", host: "10.0.0.2", port: "0", wantErr: ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseEndpoint(tt.host, tt.port)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseEndpoint() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEndpoint() unexpected error: %v", err)
			}
			if got := ep.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
