package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize caps outgoing payloads. Purifier state is a few hundred bytes.
const maxPayloadSize = 64 << 10

// Publish sends payload to topic and waits for the broker's ack at qos > 0.
// Wildcards are not allowed in a publish topic.
//
//	err := client.Publish(mqtt.Topics{}.State("bedroom"), payload, 1, true)
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkPublish(topic, payload, qos); err != nil {
		return &OpError{Op: "publish", Topic: topic, Err: err}
	}
	if !c.IsConnected() {
		return &OpError{Op: "publish", Topic: topic, Err: ErrNotConnected}
	}
	return wait("publish", topic, c.paho.Publish(topic, qos, retained, payload), ackTimeout)
}

// PublishRetained publishes a retained message at the configured QoS.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, c.qos(), true)
}

func checkPublish(topic string, payload []byte, qos byte) error {
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	return nil
}
