package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/evbridge/internal/validation"
)

// Config is the root configuration structure for evbridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Charger  ChargerConfig  `yaml:"charger"`
	Control  ControlConfig  `yaml:"control"`
	Status   StatusConfig   `yaml:"status"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ChargerConfig identifies the charger and controls status reporting.
type ChargerConfig struct {
	// DeviceID is the topic segment status values are published under.
	DeviceID string `yaml:"deviceID"`

	// StatusInterval is how often charge-now state is reported (seconds).
	StatusInterval int `yaml:"statusInterval"`
}

// ControlConfig contains the control modules.
type ControlConfig struct {
	KNX KNXControlConfig `yaml:"knx"`
}

// KNXControlConfig contains the KNX charge-now control module settings.
type KNXControlConfig struct {
	Enabled bool `yaml:"enabled"`

	// GatewayIP is the knxd host. Must be an IP literal.
	GatewayIP string `yaml:"gatewayIP"`

	// GatewayPort is the knxd TCP port. Either a number or a numeric string.
	GatewayPort any `yaml:"gatewayPort"`

	// ChargeNowRateAddress receives the charge rate in amps (DPT 14).
	ChargeNowRateAddress string `yaml:"chargeNowRateAddress"`

	// ChargeNowDurationAddress receives the session length in seconds (DPT 7).
	ChargeNowDurationAddress string `yaml:"chargeNowDurationAddress"`

	// ChargeNowDurationDefault is the session length used until a duration
	// telegram arrives (seconds).
	ChargeNowDurationDefault int `yaml:"chargeNowDurationDefault"`

	// KNXD optionally runs knxd as a child process listening on GatewayPort.
	KNXD KNXDConfig `yaml:"knxd"`
}

// KNXDConfig contains settings for a knxd instance managed by evbridge.
type KNXDConfig struct {
	Managed         bool              `yaml:"managed"`
	Binary          string            `yaml:"binary"`
	PhysicalAddress string            `yaml:"physicalAddress"`
	ClientAddresses string            `yaml:"clientAddresses"`
	GroupCache      bool              `yaml:"groupCache"`
	Backend         KNXDBackendConfig `yaml:"backend"`

	// RestartDelay is the wait before restarting a crashed knxd (seconds).
	RestartDelay int `yaml:"restartDelay"`

	// MaxRestarts limits consecutive restarts. 0 restarts forever.
	MaxRestarts int `yaml:"maxRestarts"`
}

// KNXDBackendConfig selects how knxd reaches the bus.
type KNXDBackendConfig struct {
	// Type is "usb", "ipt" (tunnelling) or "ip" (routing).
	Type             string `yaml:"type"`
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	MulticastAddress string `yaml:"multicastAddress"`
	Interface        string `yaml:"interface"`
	USBDevice        string `yaml:"usbDevice"`
}

// StatusConfig contains the status output modules.
type StatusConfig struct {
	MQTT     MQTTStatusConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBStatusConfig `yaml:"influxdb"`
}

// MQTTStatusConfig contains MQTT status publisher settings.
type MQTTStatusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerIP    string `yaml:"brokerIP"`
	BrokerPort  int    `yaml:"brokerPort"`
	TopicPrefix string `yaml:"topicPrefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`

	// ClientID is sent to the broker. Empty generates a unique ID per connection.
	ClientID string `yaml:"clientID"`

	// RateLimitSeconds is the minimum interval between messages on one topic.
	RateLimitSeconds int `yaml:"rateLimitSeconds"`

	// QueueCapacity is the number of messages kept while the broker is
	// unreachable. The queue is trimmed once it exceeds capacity+8.
	QueueCapacity int `yaml:"queueCapacity"`

	// KeepAlive is the MQTT keep-alive interval (seconds).
	KeepAlive int `yaml:"keepAlive"`
}

// InfluxDBStatusConfig contains InfluxDB status output settings.
type InfluxDBStatusConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batchSize"`
	FlushInterval int    `yaml:"flushInterval"`
}

// DatabaseConfig contains SQLite settings for the command audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"walMode"`
	BusyTimeout int    `yaml:"busyTimeout"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EVBRIDGE_SECTION_KEY
// For example: EVBRIDGE_MQTT_BROKER_IP, EVBRIDGE_KNX_GATEWAY_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Charger: ChargerConfig{
			DeviceID:       "charger",
			StatusInterval: 30,
		},
		Control: ControlConfig{
			KNX: KNXControlConfig{
				GatewayPort:              6720,
				ChargeNowDurationDefault: 3600,
				KNXD: KNXDConfig{
					Binary:          "/usr/bin/knxd",
					PhysicalAddress: "0.0.1",
					ClientAddresses: "0.0.2:8",
					Backend: KNXDBackendConfig{
						Type: "usb",
					},
					RestartDelay: 5,
				},
			},
		},
		Status: StatusConfig{
			MQTT: MQTTStatusConfig{
				BrokerPort:       1883,
				TopicPrefix:      "evbridge",
				RateLimitSeconds: 60,
				QueueCapacity:    16,
				KeepAlive:        30,
			},
			InfluxDB: InfluxDBStatusConfig{
				BatchSize:     100,
				FlushInterval: 10,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/evbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Metrics: MetricsConfig{
			Listen: ":9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EVBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Charger
	if v := os.Getenv("EVBRIDGE_DEVICE_ID"); v != "" {
		cfg.Charger.DeviceID = v
	}

	// KNX
	if v := os.Getenv("EVBRIDGE_KNX_GATEWAY_IP"); v != "" {
		cfg.Control.KNX.GatewayIP = v
	}
	if v := os.Getenv("EVBRIDGE_KNX_GATEWAY_PORT"); v != "" {
		cfg.Control.KNX.GatewayPort = v
	}
	if v := os.Getenv("EVBRIDGE_KNXD_BINARY"); v != "" {
		cfg.Control.KNX.KNXD.Binary = v
	}

	// MQTT
	if v := os.Getenv("EVBRIDGE_MQTT_BROKER_IP"); v != "" {
		cfg.Status.MQTT.BrokerIP = v
	}
	if v := os.Getenv("EVBRIDGE_MQTT_USERNAME"); v != "" {
		cfg.Status.MQTT.Username = v
	}
	if v := os.Getenv("EVBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.Status.MQTT.Password = v
	}

	// InfluxDB
	if v := os.Getenv("EVBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.Status.InfluxDB.Token = v
	}

	// Database
	if v := os.Getenv("EVBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Logging
	if v := os.Getenv("EVBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Group addresses are only checked for shape here; the KNX listener parses
// them strictly when it is created.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Charger.DeviceID == "" {
		errs = append(errs, "charger.deviceID is required")
	}
	if c.Charger.StatusInterval < 1 {
		errs = append(errs, "charger.statusInterval must be at least 1 second")
	}

	if knx := c.Control.KNX; knx.Enabled {
		if knx.GatewayIP == "" {
			errs = append(errs, "control.knx.gatewayIP is required")
		}
		if !validation.IsValidPort(knx.GatewayPort) {
			errs = append(errs, "control.knx.gatewayPort must be between 1 and 65535")
		}
		if !validation.IsKNXAddress(knx.ChargeNowRateAddress) {
			errs = append(errs, "control.knx.chargeNowRateAddress must be a main/middle/sub group address")
		}
		if !validation.IsKNXAddress(knx.ChargeNowDurationAddress) {
			errs = append(errs, "control.knx.chargeNowDurationAddress must be a main/middle/sub group address")
		}
		if knx.ChargeNowDurationDefault < 1 {
			errs = append(errs, "control.knx.chargeNowDurationDefault must be at least 1 second")
		}
		if knxd := knx.KNXD; knxd.Managed {
			switch knxd.Backend.Type {
			case "usb", "ip":
			case "ipt":
				if knxd.Backend.Host == "" {
					errs = append(errs, "control.knx.knxd.backend.host is required for ipt")
				}
			default:
				errs = append(errs, "control.knx.knxd.backend.type must be usb, ipt or ip")
			}
			if knxd.RestartDelay < 0 {
				errs = append(errs, "control.knx.knxd.restartDelay must not be negative")
			}
		}
	}

	if mqtt := c.Status.MQTT; mqtt.Enabled {
		if mqtt.BrokerIP == "" {
			errs = append(errs, "status.mqtt.brokerIP is required")
		}
		if mqtt.TopicPrefix == "" {
			errs = append(errs, "status.mqtt.topicPrefix is required")
		}
		if mqtt.RateLimitSeconds < 0 {
			errs = append(errs, "status.mqtt.rateLimitSeconds must not be negative")
		}
		if mqtt.QueueCapacity < 1 {
			errs = append(errs, "status.mqtt.queueCapacity must be at least 1")
		}
		if mqtt.KeepAlive < 1 {
			errs = append(errs, "status.mqtt.keepAlive must be at least 1 second")
		}
	}

	if influx := c.Status.InfluxDB; influx.Enabled {
		if influx.URL == "" {
			errs = append(errs, "status.influxdb.url is required")
		}
		if influx.Org == "" {
			errs = append(errs, "status.influxdb.org is required")
		}
		if influx.Bucket == "" {
			errs = append(errs, "status.influxdb.bucket is required")
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "logging.level must be debug, info, warn or error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// StatusIntervalDuration returns the status reporting interval as a Duration.
func (c ChargerConfig) StatusIntervalDuration() time.Duration {
	return time.Duration(c.StatusInterval) * time.Second
}

// DefaultDuration returns the default charge-now session length as a Duration.
func (c KNXControlConfig) DefaultDuration() time.Duration {
	return time.Duration(c.ChargeNowDurationDefault) * time.Second
}

// RestartDelayDuration returns the knxd restart delay as a Duration.
func (c KNXDConfig) RestartDelayDuration() time.Duration {
	return time.Duration(c.RestartDelay) * time.Second
}

// RateLimit returns the per-topic rate limit as a Duration.
func (c MQTTStatusConfig) RateLimit() time.Duration {
	return time.Duration(c.RateLimitSeconds) * time.Second
}

// KeepAliveDuration returns the MQTT keep-alive interval as a Duration.
func (c MQTTStatusConfig) KeepAliveDuration() time.Duration {
	return time.Duration(c.KeepAlive) * time.Second
}

// FlushIntervalDuration returns the InfluxDB flush interval as a Duration.
func (c InfluxDBStatusConfig) FlushIntervalDuration() time.Duration {
	return time.Duration(c.FlushInterval) * time.Second
}

// BusyTimeoutDuration returns the SQLite busy timeout as a Duration.
func (c DatabaseConfig) BusyTimeoutDuration() time.Duration {
	return time.Duration(c.BusyTimeout) * time.Second
}
