package mqtt

import (
	"fmt"
	"strings"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// statusQoS is used for status messages: at most once, never retained.
const statusQoS byte = 0

// Publish sends a status message and waits for paho to hand it to the network.
//
// Parameters:
//   - topic: The topic to publish to (no wildcards)
//   - payload: The message payload (max 1MB)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (s *Session) Publish(topic string, payload []byte) error {
	if err := validateTopic(topic); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !s.client.IsConnected() {
		return ErrNotConnected
	}

	token := s.client.Publish(topic, statusQoS, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrPublishFailed, ErrTimeout, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// validateTopic rejects topics that cannot be published to.
func validateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains a wildcard", ErrInvalidTopic, topic)
	}
	return nil
}
