package mqtt

import "fmt"

// maxStatePayload bounds a retained state document. Device state is a few
// hundred bytes; anything near this size is a bug upstream.
const maxStatePayload = 64 << 10

// PublishRetained publishes payload as the retained value of topic at the
// configured QoS and waits for the broker. An empty payload clears the
// retained value.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxStatePayload {
		return fmt.Errorf("%w: %d byte payload on %s exceeds %d", ErrPublishFailed, len(payload), topic, maxStatePayload)
	}
	if !c.isConnected() {
		return ErrNotConnected
	}
	return wait(c.paho.Publish(topic, c.qos, true, payload), ErrPublishFailed)
}
