package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	clientIDPrefix = "iceicedata-"
	poll           = 200 * time.Millisecond
	quiesceMillis  = 250
)

var ErrNotConnected = errors.New("mqtt client not connected")

type Options struct {
	Server   string
	Port     int
	Username string
	Password string
	// ClientID defaults to "iceicedata-<uuid>".
	ClientID       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Client is a short-lived publisher: connect, publish a few messages, disconnect.
type Client struct {
	client    mqtt.Client
	opts      Options
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(o Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if o.ClientID == "" {
		o.ClientID = clientIDPrefix + uuid.NewString()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}

	c := &Client{
		opts:   o,
		logger: logger.With("broker", o.Server, "port", o.Port, "client_id", o.ClientID),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", o.Server, o.Port))
	opts.SetClientID(o.ClientID)
	// Credentials only apply as a pair.
	if o.Username != "" && o.Password != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)

	// One attempt per dispatch; the next cycle is the retry.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.ConnectTimeout)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		c.logger.Debug("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

// Connect waits for the broker to accept the session, bounded by ctx and the
// configured connect timeout.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return errors.New("mqtt client stopped")
	default:
	}
	if c.IsConnected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	token := c.client.Connect()
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			c.setConnected(true)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mqtt connect: %w", ctx.Err())
		case <-c.stopCh:
			return errors.New("mqtt client stopped")
		default:
		}
	}
}

// Publish sends payload at QoS 1 and waits for the broker acknowledgement.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.PublishTimeout)
	defer cancel()

	token := c.client.Publish(topic, 1, retained, payload)
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
		default:
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	c.logger.Debug("published", "topic", topic, "bytes", len(payload), "retained", retained)
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect is idempotent. After it, Connect returns an error.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.client != nil && c.client.IsConnectionOpen() {
		c.client.Disconnect(quiesceMillis)
	}
	c.setConnected(false)
	c.logger.Debug("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
