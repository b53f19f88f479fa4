package knx

import "errors"

// Domain errors for the KNX bridge package.
var (
	// ErrConnectionFailed is returned when the connection to knxd fails.
	ErrConnectionFailed = errors.New("knx: connection to knxd failed")

	// ErrConnectionLost is returned by Receive when an established
	// connection to knxd breaks.
	ErrConnectionLost = errors.New("knx: connection to knxd lost")

	// ErrInvalidGroupAddress is returned when a group address string
	// cannot be parsed.
	ErrInvalidGroupAddress = errors.New("knx: invalid group address")

	// ErrInvalidConfig is returned when the listener configuration is
	// unusable. It is fatal at startup.
	ErrInvalidConfig = errors.New("knx: invalid configuration")

	// ErrEncodingFailed is returned when encoding a value to KNX format fails.
	ErrEncodingFailed = errors.New("knx: encoding failed")

	// ErrDecodingFailed is returned when decoding KNX data to a value fails.
	ErrDecodingFailed = errors.New("knx: decoding failed")

	// ErrInvalidTelegram is returned when a received telegram is malformed.
	ErrInvalidTelegram = errors.New("knx: invalid telegram")

	// ErrProtocolDesync is returned when a knxd frame cannot be framed
	// safely. The stream is unusable and the connection must be dropped.
	ErrProtocolDesync = errors.New("knx: protocol desync")
)
