package mqtt

import (
	"encoding/json"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps one message at 1 MiB, below common broker limits.
const maxPayloadSize = 1 << 20

// Publish sends payload and waits for the broker acknowledgement. State
// topics (device state and status, health, system status) are retained;
// cycle summaries are not.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %s payload is %d bytes, limit %d", ErrInvalidMessage, topic, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed)
}

// PublishJSON encodes v and publishes it at the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s payload: %w", ErrPublishFailed, topic, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), retained)
}

func validate(topic string, qos byte) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidMessage)
	}
	if qos > maxQoS {
		return fmt.Errorf("%w: qos %d", ErrInvalidMessage, qos)
	}
	return nil
}

// await waits for a paho token, wrapping a timeout or broker error in kind.
func await(token pahomqtt.Token, kind error) error {
	if !token.WaitTimeout(defaultAckTimeout) {
		return fmt.Errorf("%w: no acknowledgement within %v", kind, defaultAckTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
