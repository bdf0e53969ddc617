package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/config"
)

// Client adapts paho.mqtt.golang to the session's transport contract.
//
// Each Connect creates a fresh paho client; Disconnect releases it. The
// library reconnects on its own after a lost connection and reports every
// successful connection through the on-connect callback.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Callbacks are invoked on paho's goroutines.
type Client struct {
	cfg config.MQTTConfig

	// client is the live paho client, nil while disconnected.
	client pahomqtt.Client
	// closing is closed by Disconnect to release pending ack waiters.
	closing chan struct{}
	mu      sync.RWMutex

	onConnect   func(code byte)
	onLost      func(err error)
	onSubscribe func(filter string, granted []byte)
	onMessage   func(topic string, qos byte, payload []byte)
	callbackMu  sync.RWMutex

	// logger for error/panic logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex

	// acks tracks goroutines waiting on subscribe tokens.
	acks sync.WaitGroup
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// New creates an unconnected client for cfg.
func New(cfg config.MQTTConfig) *Client {
	return &Client{cfg: cfg}
}

// URL returns the broker URL the client connects to.
func (c *Client) URL() string {
	return brokerURL(c.cfg)
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Builds connection options from config (broker URL, auth, TLS, will)
//  2. Registers the connection and message callbacks
//  3. Makes one connection attempt bounded by connect_timeout and ctx
//
// A refusal carries the broker's return code (*ConnackError); an attempt
// that does not finish in time returns *TimeoutError.
func (c *Client) Connect(ctx context.Context) error {
	opts, err := buildClientOptions(c.cfg)
	if err != nil {
		return err
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	opts.SetDefaultPublishHandler(c.handleMessage)

	client := pahomqtt.NewClient(opts)

	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: already connected", ErrConnectionFailed)
	}
	c.client = client
	c.closing = make(chan struct{})
	c.mu.Unlock()

	timeout := connectTimeout(c.cfg)
	token := client.Connect()
	if err := wait(ctx, token, timeout, "connect"); err != nil {
		if errors.Is(err, ErrTimeout) || ctx.Err() != nil {
			return err
		}
		// Codes 1-5 are CONNACK refusals; paho uses higher values internally.
		if ct, ok := token.(*pahomqtt.ConnectToken); ok {
			if code := ct.ReturnCode(); code >= 1 && code <= 5 {
				return &ConnackError{Code: code, Err: err}
			}
		}
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return nil
}

// wait blocks until token completes, ctx ends or timeout elapses.
func wait(ctx context.Context, token pahomqtt.Token, timeout time.Duration, op string) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return &TimeoutError{Op: op, After: timeout}
	case <-ctx.Done():
		return fmt.Errorf("mqtt: %s: %w", op, ctx.Err())
	}
}

// handleConnect is called by paho after every successful connection.
func (c *Client) handleConnect() {
	if statusEnabled(c.cfg) {
		c.mu.RLock()
		client := c.client
		c.mu.RUnlock()
		if client != nil {
			c.publishStatus(client, buildOnlinePayload(c.cfg.Broker.ClientID), false)
		}
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(0)
	}
}

// handleConnectionLost is called by paho when the connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.callbackMu.RLock()
	callback := c.onLost
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus publishes a retained status payload on the will topic.
// With wait set it blocks up to the publish timeout.
func (c *Client) publishStatus(client pahomqtt.Client, payload string, wait bool) {
	token := client.Publish(c.cfg.Will.Topic, byte(c.cfg.Will.QoS), true, payload)
	if wait && !token.WaitTimeout(publishTimeout(c.cfg)) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("status publish timed out", "topic", c.cfg.Will.Topic)
		}
	}
}

// Disconnect gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes graceful offline status when status messages are enabled
//  2. Waits for pending operations (quiesce)
//  3. Disconnects and releases the paho client
//
// Calling it while disconnected is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	client := c.client
	closing := c.closing
	c.client = nil
	c.closing = nil
	c.mu.Unlock()
	if client == nil {
		return nil
	}

	if client.IsConnectionOpen() && statusEnabled(c.cfg) {
		c.publishStatus(client, buildOfflinePayload(c.cfg.Broker.ClientID), true)
	}

	// Also aborts an attempt still in progress after a connect timeout.
	client.Disconnect(defaultDisconnectQuiesce)
	close(closing)
	c.acks.Wait()

	return nil
}

// IsConnected reports whether the connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

// SetOnConnect sets the callback invoked after every successful connection.
// Paho reports refusals through Connect's error, so code is always 0.
func (c *Client) SetOnConnect(callback func(code byte)) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnConnectionLost sets the callback invoked when the connection drops.
func (c *Client) SetOnConnectionLost(callback func(err error)) {
	c.callbackMu.Lock()
	c.onLost = callback
	c.callbackMu.Unlock()
}

// SetOnSubscribe sets the callback receiving subscribe acknowledgments.
func (c *Client) SetOnSubscribe(callback func(filter string, granted []byte)) {
	c.callbackMu.Lock()
	c.onSubscribe = callback
	c.callbackMu.Unlock()
}

// SetOnMessage sets the callback receiving every incoming message.
func (c *Client) SetOnMessage(callback func(topic string, qos byte, payload []byte)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in callbacks are silently ignored.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// handleMessage relays an incoming message with panic recovery.
func (c *Client) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Error("MQTT message callback panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}
	}()

	c.callbackMu.RLock()
	callback := c.onMessage
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(msg.Topic(), msg.Qos(), msg.Payload())
	}
}
