package validation

import "errors"

var (
	// ErrInvalidHost is returned when an endpoint host is not an IP address.
	ErrInvalidHost = errors.New("validation: host is not a valid IP address")

	// ErrInvalidPort is returned when a port is outside 1-65535.
	ErrInvalidPort = errors.New("validation: port must be between 1 and 65535")
)
