// Package logging provides structured logging for evbridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the bridges.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - A component field per bridge ("knx", "mqttstatus", "charger")
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	knxLog := logger.Component("knx")
//	knxLog.Info("connected to knxd", "endpoint", "192.168.1.50:6720")
//
// # Security
//
// Never log broker passwords or InfluxDB tokens.
package logging
