package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// maxPayloadSize caps a single message at 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to accept it.
// The change feed publishes with retained false; only the status topic is
// retained.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload is over the %d byte limit", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, qos, retained, payload), defaultPublishTimeout, ErrPublishFailed)
}

// Subscribe delivers messages matching filter, which may hold wildcards,
// to handler. The subscription survives reconnects.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	if err := checkTopic(filter, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.routesMu.Lock()
	c.routes[filter] = route{filter: filter, qos: qos, handler: handler}
	c.routesMu.Unlock()

	err := await(c.paho.Subscribe(filter, qos, c.dispatch(handler)), defaultPublishTimeout, ErrSubscribeFailed)
	if err != nil {
		c.routesMu.Lock()
		delete(c.routes, filter)
		c.routesMu.Unlock()
	}
	return err
}

func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}

// await waits for a paho token and tags any failure with sentinel.
func await(token pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: no acknowledgement after %v", sentinel, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}
