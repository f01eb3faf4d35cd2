// Package mqtt publishes alert events to an MQTT broker.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/tphakala/logwatch/internal/logger"
	"github.com/tphakala/logwatch/internal/observability"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesce     = 250 // milliseconds
	// QoS is the delivery guarantee for alert events: at least once.
	QoS byte = 1
)

var (
	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("invalid mqtt config")
	// ErrNotConnected is returned when publishing before Connect succeeded.
	ErrNotConnected = errors.New("mqtt client not connected")
	// ErrTimeout is returned when the broker does not acknowledge in time.
	ErrTimeout = errors.New("mqtt operation timed out")
)

// Config holds the broker connection settings.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// Client is a minimal MQTT client for publishing.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic, payload string) error
	IsConnected() bool
	Disconnect()
}

type client struct {
	cfg     Config
	metrics *observability.Metrics
	log     logger.Logger

	mu   sync.Mutex
	conn paho.Client
}

// NewClient validates cfg and returns a client that is not yet connected.
func NewClient(cfg Config, m *observability.Metrics, log logger.Logger) (Client, error) {
	u, err := url.Parse(cfg.Broker)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: broker %q must look like tcp://host:1883", ErrInvalidConfig, cfg.Broker)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	return &client{cfg: cfg, metrics: m, log: log.With(logger.String("broker", u.Host))}, nil
}

// Connect dials the broker and waits for the CONNACK. Paho reconnects on
// its own after a successful first connection.
func (c *client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetOnConnectHandler(func(paho.Client) {
			c.log.Info("connected to mqtt broker")
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.log.Warn("lost connection to mqtt broker", logger.Error(err))
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	conn := paho.NewClient(opts)
	if err := wait(ctx, conn.Connect(), c.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.Broker, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Publish sends payload to topic with QoS 1, not retained.
func (c *client) Publish(ctx context.Context, topic, payload string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !conn.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := wait(ctx, conn.Publish(topic, QoS, false, payload), c.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnectionOpen()
}

func (c *client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Disconnect(disconnectQuiesce)
	}
}

// wait blocks until token completes, ctx ends or timeout passes.
func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
