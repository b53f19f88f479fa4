package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/evbridge/internal/infrastructure/config"
	"github.com/nerrad567/evbridge/internal/validation"
)

// Dialer opens short-lived broker connections for the status publisher.
//
// Each Dial creates a new paho client. The connection is established in the
// background; Session.Wait reports the outcome.
type Dialer struct {
	cfg config.MQTTStatusConfig
}

// NewDialer creates a Dialer for the status.mqtt configuration section.
// The broker endpoint is validated on every Dial, not here.
func NewDialer(cfg config.MQTTStatusConfig) *Dialer {
	return &Dialer{cfg: cfg}
}

// Dial starts connecting to the broker.
//
// Returns:
//   - *Session: Connection in progress; call Wait before publishing
//   - error: ErrInvalidBroker if the configured IP or port is unusable
func (d *Dialer) Dial() (*Session, error) {
	endpoint, err := validation.ParseEndpoint(d.cfg.BrokerIP, d.cfg.BrokerPort)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBroker, err)
	}

	opts := buildClientOptions(d.cfg, endpoint)
	client := pahomqtt.NewClient(opts)

	return &Session{
		client:   client,
		connect:  client.Connect(),
		clientID: opts.ClientID,
	}, nil
}

// Session is one broker connection.
//
// Thread Safety:
//   - Wait, Publish and Close may be called from different goroutines, but
//     Publish is only valid after Wait has returned nil.
type Session struct {
	client   pahomqtt.Client
	connect  pahomqtt.Token
	clientID string
}

// ClientID returns the client identifier sent to the broker.
func (s *Session) ClientID() string {
	return s.clientID
}

// Wait blocks until the broker accepts or rejects the connection, or ctx
// is done.
//
// Returns:
//   - error: ErrConnectionFailed wrapping the broker or context error
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.connect.Done():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}

	if err := s.connect.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// Close disconnects from the broker, allowing a short quiesce period for
// queued packets. Safe to call on a session whose connection failed.
func (s *Session) Close() {
	s.client.Disconnect(defaultDisconnectQuiesce)
}
