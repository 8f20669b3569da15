package mqtt

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/pcassist/internal/events"
	"github.com/AaronLay10/pcassist/internal/metrics"
)

const (
	defaultBrokerURL = "tcp://localhost:1883"

	connectTimeout   = 10 * time.Second
	subscribeTimeout = 10 * time.Second
	// Overlay frames are superseded within a frame or two, so a slow
	// publish is abandoned rather than queued.
	publishTimeout = 2 * time.Second
)

// Presence payloads, retained on the presence topic.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

// Transport is the part of Client the sample source and overlay publisher
// use. Tests substitute an in-memory broker.
type Transport interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Publish(topic string, payload []byte, retained bool) error
}

// Options configure a Client.
type Options struct {
	URL      string
	ClientID string
	Username string
	Password string
	// PresenceTopic, if set, holds "online" while connected and the broker
	// sets it to "offline" if the connection drops.
	PresenceTopic string
}

// Client is a Paho connection that remembers its subscriptions and renews
// them after every reconnect.
type Client struct {
	client   paho.Client
	url      string
	presence string

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// BrokerURL returns the MQTT broker URL: MQTT_URL from env, then the
// configured value, then the local default.
func BrokerURL(configured string) string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	if configured != "" {
		return configured
	}
	return defaultBrokerURL
}

// NewClient creates a client but does not connect.
func NewClient(o Options) *Client {
	c := &Client{
		url:      BrokerURL(o.URL),
		presence: o.PresenceTopic,
		subs:     make(map[string]paho.MessageHandler),
	}

	opts := paho.NewClientOptions().
		AddBroker(c.url).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			metrics.MQTTConnected.Set(0)
			events.Emit("warning", "mqtt.disconnected", err.Error(), map[string]interface{}{"broker": c.url})
		})
	if o.Username != "" {
		opts.SetUsername(o.Username).SetPassword(o.Password)
	}
	if c.presence != "" {
		opts.SetWill(c.presence, presenceOffline, 1, true)
	}

	c.client = paho.NewClient(opts)
	return c
}

// onConnect runs on the first connect and on every automatic reconnect.
// A clean session forgets subscriptions, so they are renewed here.
func (c *Client) onConnect(pc paho.Client) {
	metrics.MQTTConnected.Set(1)
	events.Emit("info", "mqtt.connected", "", map[string]interface{}{"broker": c.url})

	c.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(c.subs))
	for topic, h := range c.subs {
		subs[topic] = h
	}
	c.mu.Unlock()

	for topic, h := range subs {
		if err := wait(pc.Subscribe(topic, 1, h), subscribeTimeout, "subscribe", topic); err != nil {
			log.Printf("mqtt: resubscribe %s: %v", topic, err)
		}
	}
	if c.presence != "" {
		if err := wait(pc.Publish(c.presence, 1, true, presenceOnline), publishTimeout, "publish", c.presence); err != nil {
			log.Printf("mqtt: presence: %v", err)
		}
	}
}

// URL returns the broker the client dials.
func (c *Client) URL() string {
	return c.url
}

// Connect dials the broker, giving up after connectTimeout.
func (c *Client) Connect() error {
	return wait(c.client.Connect(), connectTimeout, "connect", "")
}

// Subscribe subscribes at QoS 1 and records the handler for reconnects.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	if err := wait(c.client.Subscribe(topic, 1, handler), subscribeTimeout, "subscribe", topic); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()
	return nil
}

// Publish sends payload at QoS 0.
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	return wait(c.client.Publish(topic, 0, retained, payload), publishTimeout, "publish", topic)
}

// Disconnect marks the client offline and closes the connection. An
// orderly disconnect does not fire the will, so presence is set here.
func (c *Client) Disconnect() {
	if c.presence != "" && c.client.IsConnected() {
		if err := wait(c.client.Publish(c.presence, 1, true, presenceOffline), publishTimeout, "publish", c.presence); err != nil {
			log.Printf("mqtt: presence: %v", err)
		}
	}
	c.client.Disconnect(1000)
	metrics.MQTTConnected.Set(0)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// TimeoutError is returned when the broker does not acknowledge an
// operation in time.
type TimeoutError struct {
	Op    string // connect, subscribe or publish
	Topic string
}

func (e *TimeoutError) Error() string {
	if e.Topic == "" {
		return fmt.Sprintf("mqtt %s timeout", e.Op)
	}
	return fmt.Sprintf("mqtt %s timeout: %s", e.Op, e.Topic)
}

func wait(t paho.Token, d time.Duration, op, topic string) error {
	if !t.WaitTimeout(d) {
		return &TimeoutError{Op: op, Topic: topic}
	}
	return t.Error()
}

// Start connects and runs subscribe. Failures are returned, not retried;
// once connected, Paho reconnects on its own.
func (c *Client) Start(subscribe func(Transport) error) error {
	if err := c.Connect(); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", c.url, err)
	}
	if subscribe != nil {
		if err := subscribe(c); err != nil {
			c.Disconnect()
			return fmt.Errorf("mqtt: subscribe: %w", err)
		}
	}
	log.Printf("mqtt: connected to %s", c.url)
	return nil
}
