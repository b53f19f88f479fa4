package mqtt

import (
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/evbridge/internal/infrastructure/config"
	"github.com/nerrad567/evbridge/internal/validation"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the broker's CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for a publish to complete.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is used when the configuration leaves keepAlive unset.
	defaultKeepAlive = 30 * time.Second

	// protocolVersion pins MQTT 3.1.1.
	protocolVersion = 4

	// clientIDPrefix prefixes generated client IDs.
	clientIDPrefix = "evbridge-"
)

// buildClientOptions creates paho MQTT options for one status connection.
//
// This configures:
//   - Broker URL (tcp://host:port from the validated endpoint)
//   - Client ID (configured, or generated per connection)
//   - Authentication credentials (only when both username and password are set)
//   - Clean session with no automatic reconnection; the caller dials a
//     fresh connection for each batch of status messages
func buildClientOptions(cfg config.MQTTStatusConfig, endpoint validation.Endpoint) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker("tcp://" + endpoint.String())

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = clientIDPrefix + uuid.NewString()
	}
	opts.SetClientID(clientID)

	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetProtocolVersion(protocolVersion)
	opts.SetCleanSession(true)

	// One connection per drain cycle: paho must not retry on its own.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(defaultConnectTimeout)

	keepAlive := cfg.KeepAliveDuration()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	return opts
}
