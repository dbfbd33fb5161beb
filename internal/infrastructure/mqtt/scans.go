package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ScanHandler receives one scan event. scanner is the last level of the
// topic the event was published on.
type ScanHandler func(scanner string, payload []byte) error

// SubscribeScans routes every message matching pattern to handler.
// Handler errors are logged as rejected events and panics are recovered.
// The subscription survives reconnects until Unsubscribe.
func (c *Client) SubscribeScans(pattern string, handler ScanHandler) error {
	if pattern == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, pattern)
	}
	if !c.isConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.scans[pattern] = handler
	c.mu.Unlock()

	if err := wait(c.paho.Subscribe(pattern, c.qos, c.scanCallback(handler)), ErrSubscribeFailed); err != nil {
		c.mu.Lock()
		delete(c.scans, pattern)
		c.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe drops a scan subscription. While disconnected the pattern is
// only forgotten, so it is not restored on reconnect.
func (c *Client) Unsubscribe(pattern string) error {
	if pattern == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	delete(c.scans, pattern)
	c.mu.Unlock()

	if !c.isConnected() {
		return nil
	}
	return wait(c.paho.Unsubscribe(pattern), ErrSubscribeFailed)
}

func (c *Client) scanCallback(handler ScanHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.deliverScan(handler, msg.Topic(), msg.Payload())
	}
}

func (c *Client) deliverScan(handler ScanHandler, topic string, payload []byte) {
	scanner := scannerFromTopic(topic)
	defer func() {
		if r := recover(); r != nil {
			c.log().Error("scan handler panic recovered", "topic", topic, "scanner", scanner, "panic", r)
		}
	}()

	if err := handler(scanner, payload); err != nil {
		c.log().Warn("scan event rejected", "topic", topic, "scanner", scanner, "error", err)
	}
}
