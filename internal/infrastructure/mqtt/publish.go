package mqtt

import (
	"fmt"
)

// Maximum payload size for MQTT messages (1MB).
// Prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Publish sends a message to the specified MQTT topic.
//
// QoS levels: 0 at most once, 1 at least once, 2 exactly once. Retained
// messages are stored by the broker and delivered to new subscribers
// immediately; use for status topics, not events.
//
// Example:
//
//	topic := mqtt.Topics{}.Event("device.response", connectionID)
//	err := client.Publish(topic, payload, 1, false)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishEvent publishes payload to the event mirror topic for the given
// event type and connection, using the configured default QoS. Events are
// never retained.
func (c *Client) PublishEvent(eventType, connectionID string, payload []byte) error {
	return c.Publish(Topics{}.Event(eventType, connectionID), payload, byte(c.cfg.QoS), false)
}
