package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/litemodel/internal/infrastructure/config"
)

// Client is the broker connection behind the change feed. It announces
// itself on {prefix}/system/status and resubscribes after reconnects.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	routesMu sync.RWMutex
	routes   map[string]route

	// mu guards the fields below.
	mu           sync.RWMutex
	up           bool
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger receives handler failures. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// route is a live subscription, kept so it can be replayed on reconnect.
type route struct {
	filter  string
	qos     byte
	handler MessageHandler
}

// MessageHandler consumes one message. Paho calls it on its own goroutine;
// a returned error is only logged.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker with the status topic as the will and waits for
// the first connection. Later drops are retried by paho in the background.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	topics := Topics{Prefix: cfg.TopicPrefix}
	opts := buildClientOptions(cfg)
	configureLWT(opts, topics, cfg.Broker.ClientID)

	c := &Client{
		cfg:    cfg,
		topics: topics,
		routes: make(map[string]route),
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: no answer from %s:%d within %v", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler may still be pending.
	c.setUp(true)
	return c, nil
}

// Topics returns the topic layout under the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS is the configured QoS for feed messages.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

func (c *Client) setUp(up bool) {
	c.mu.Lock()
	c.up = up
	c.mu.Unlock()
}

// connected runs on the first connect and on every reconnect.
func (c *Client) connected() {
	c.setUp(true)
	c.resubscribe()
	c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, buildOnlinePayload(c.cfg.Broker.ClientID))

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) lost(err error) {
	c.mu.Lock()
	c.up = false
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client) resubscribe() {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()

	for _, r := range c.routes {
		c.paho.Subscribe(r.filter, r.qos, c.dispatch(r.handler))
	}
}

// Close marks the client offline on the status topic and disconnects.
// A zero Client closes without error.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, buildOfflinePayload(c.cfg.Broker.ClientID)).
			WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.setUp(false)
	return nil
}

// HealthCheck fails with ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether both this client and paho consider the
// connection up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	up := c.up
	c.mu.RUnlock()
	return up && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect registers fn to run after every successful (re)connect.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets where handler failures are reported.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// dispatch adapts handler to paho, logging its errors and containing panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("mqtt message handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("mqtt message handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
