// Package mqtt provides the broker transport for the charger status publisher.
//
// Status messages are sent in bursts: the publisher queues values, dials a
// connection, drains the queue and disconnects. This package supplies that
// connection:
//
//   - Dialer validates the broker endpoint and starts a paho connection
//   - Session.Wait reports whether the broker accepted the connection
//   - Session.Publish sends one QoS 0, non-retained message
//   - Session.Close disconnects
//
// Automatic reconnection is disabled; the next burst dials again.
//
// # Usage
//
//	dialer := mqtt.NewDialer(cfg.Status.MQTT)
//	sess, err := dialer.Dial()
//	if err != nil {
//	    return err // invalid broker endpoint
//	}
//	defer sess.Close()
//	if err := sess.Wait(ctx); err != nil {
//	    return err
//	}
//	topic := mqtt.StatusTopic(cfg.Status.MQTT.TopicPrefix, "twc-garage", "chargeNowAmps")
//	err = sess.Publish(topic, []byte("16"))
//
// # Security Considerations
//
// Credentials are only sent when both username and password are configured.
// There is no TLS support; keep the broker on a trusted network.
package mqtt
