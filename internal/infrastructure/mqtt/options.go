package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// brokerURL returns the broker address. An explicit URL wins; otherwise
// tcp:// or ssl:// is chosen from the TLS flag.
func brokerURL(cfg config.MQTTConfig) string {
	if cfg.Broker.URL != "" {
		return cfg.Broker.URL
	}
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// usesTLS reports whether the connection needs a TLS configuration.
func usesTLS(cfg config.MQTTConfig) bool {
	if cfg.Broker.URL == "" {
		return cfg.Broker.TLS
	}
	u := strings.ToLower(cfg.Broker.URL)
	return strings.HasPrefix(u, "ssl://") ||
		strings.HasPrefix(u, "tls://") ||
		strings.HasPrefix(u, "mqtts://") ||
		strings.HasPrefix(u, "wss://")
}

// buildClientOptions creates paho MQTT options from the client config.
//
// This configures:
//   - Broker URL (explicit, or tcp:// / ssl:// from host, port and TLS)
//   - Client ID and credentials
//   - Auto-reconnect after a lost connection, with backoff up to max_delay
//   - A single initial attempt (no connect retry), so failures surface
//   - TLS configuration (if enabled)
//   - Last Will and Testament (if a will topic is set)
func buildClientOptions(cfg config.MQTTConfig) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)

	// The library reconnects on its own after a loss; the first attempt is
	// made exactly once so the caller sees refusals.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	if cfg.Reconnect.InitialDelay > 0 {
		opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	}
	if cfg.Reconnect.MaxDelay > 0 {
		opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	}

	opts.SetConnectTimeout(connectTimeout(cfg))

	keepAlive := cfg.GetKeepAlive()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if usesTLS(cfg) {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	configureWill(opts, cfg)

	return opts, nil
}

// buildTLSConfig loads the CA bundle and client certificate, if configured.
func buildTLSConfig(cfg config.MQTTTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tlsMinVersion,
		InsecureSkipVerify: cfg.Insecure, //nolint:gosec // opt-in for test brokers
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: reading CA file: %w", ErrTLSConfig, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates found in %s", ErrTLSConfig, cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client certificate: %w", ErrTLSConfig, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// statusEnabled reports whether JSON status messages are published on the
// will topic: a topic is set but no explicit payload.
func statusEnabled(cfg config.MQTTConfig) bool {
	return cfg.Will.Topic != "" && cfg.Will.Payload == ""
}

// configureWill sets up the Last Will and Testament.
//
// The LWT message is published by the broker if the client disconnects
// unexpectedly (crash, network failure, etc.). Without an explicit payload
// the JSON offline status with reason unexpected_disconnect is used.
func configureWill(opts *pahomqtt.ClientOptions, cfg config.MQTTConfig) {
	if cfg.Will.Topic == "" {
		return
	}
	payload := cfg.Will.Payload
	if payload == "" {
		payload = buildWillPayload(cfg.Broker.ClientID)
	}
	opts.SetWill(cfg.Will.Topic, payload, byte(cfg.Will.QoS), cfg.Will.Retain)
}

// buildWillPayload creates the JSON payload for the broker-published will.
func buildWillPayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

func connectTimeout(cfg config.MQTTConfig) time.Duration {
	if d := cfg.GetConnectTimeout(); d > 0 {
		return d
	}
	return defaultConnectTimeout
}

func publishTimeout(cfg config.MQTTConfig) time.Duration {
	if d := cfg.GetPublishTimeout(); d > 0 {
		return d
	}
	return defaultPublishTimeout
}
