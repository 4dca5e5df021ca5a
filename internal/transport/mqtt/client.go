// Package mqtt is the broker session used for device telemetry and commands.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"climate_bridge/internal/device"
	"climate_bridge/internal/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	defaultPublishTimeout = 5 * time.Second
	defaultConnectTimeout = 10 * time.Second
	disconnectQuiesceMs   = 250
)

// MessageHandler receives inbound messages on the broker goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// ConnObserver is told about session state changes.
type ConnObserver interface {
	MQTTConnected(up bool)
}

type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	PublishTimeout time.Duration
	ConnectTimeout time.Duration
	Subscriptions  []string
	OnMessage      MessageHandler
	// OnConnect runs in its own goroutine after every (re)connect and resubscribe.
	OnConnect func()
}

type Client struct {
	client paho.Client
	opts   Options
	log    *logger.Logger
	obs    ConnObserver
}

// New configures a client; Connect opens the session. obs may be nil.
func New(opts Options, log *logger.Logger, obs ConnObserver) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	c := &Client{opts: opts, log: log, obs: obs}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(opts.ConnectTimeout).
		SetKeepAlive(30 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	if cfg := tlsConfigFor(opts.Broker); cfg != nil {
		po.SetTLSConfig(cfg)
	}
	c.client = paho.NewClient(po)
	return c
}

// tlsConfigFor returns a TLS config for ssl/tls/mqtts/wss brokers and nil otherwise.
func tlsConfigFor(broker string) *tls.Config {
	u, err := url.Parse(broker)
	if err != nil {
		return nil
	}
	switch strings.ToLower(u.Scheme) {
	case "ssl", "tls", "mqtts", "tcps", "wss":
		return &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	default:
		return nil
	}
}

// Connect starts the session. With connect-retry enabled paho keeps trying in
// the background, so a timeout here is reported but not fatal for the caller.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", c.opts.Broker, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.opts.ConnectTimeout):
		return fmt.Errorf("mqtt connect %s: timed out after %s", c.opts.Broker, c.opts.ConnectTimeout)
	}
}

// Close disconnects, letting in-flight work finish briefly.
func (c *Client) Close() {
	c.client.Disconnect(disconnectQuiesceMs)
	if c.obs != nil {
		c.obs.MQTTConnected(false)
	}
}

// IsConnected reports whether the session is currently open.
func (c *Client) IsConnected() bool { return c.client.IsConnectionOpen() }

// Publish sends payload (not retained) and waits for the token, bounded by the
// publish timeout and ctx.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if !c.IsConnected() {
		return device.ErrNotConnected
	}
	token := c.client.Publish(topic, c.opts.QoS, false, payload)
	timer := time.NewTimer(c.opts.PublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("publish timed out")
	}
}

func (c *Client) onConnect(pc paho.Client) {
	c.log.Infow("mqtt_connected", "broker", c.opts.Broker)
	if c.obs != nil {
		c.obs.MQTTConnected(true)
	}
	for _, topic := range c.opts.Subscriptions {
		token := pc.Subscribe(topic, c.opts.QoS, c.handle)
		if !token.WaitTimeout(c.opts.ConnectTimeout) {
			c.log.Errorw("mqtt_subscribe_timeout", "topic", topic)
			continue
		}
		if err := token.Error(); err != nil {
			c.log.Errorw("mqtt_subscribe_failed", "topic", topic, "err", err)
			continue
		}
		c.log.Infow("mqtt_subscribed", "topic", topic)
	}
	if c.opts.OnConnect != nil {
		go c.opts.OnConnect()
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warnw("mqtt_connection_lost", "err", err)
	if c.obs != nil {
		c.obs.MQTTConnected(false)
	}
}

func (c *Client) handle(_ paho.Client, msg paho.Message) {
	if c.opts.OnMessage == nil {
		return
	}
	c.opts.OnMessage(msg.Topic(), msg.Payload())
}
