package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // status.influxdb.enabled is false
//	}
var (
	// ErrNotConnected indicates the client has been closed.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed wraps errors reported asynchronously by the write API.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled indicates the InfluxDB status output is disabled.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
