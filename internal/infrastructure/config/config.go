package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// ClientIDPrefix prefixes generated client identifiers.
const ClientIDPrefix = "mqtt-client-app-"

// Config is the root configuration structure for the MQTT client.
// Values are loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Publish   PublishConfig   `yaml:"publish"`
	Subscribe SubscribeConfig `yaml:"subscribe"`
	Payload   PayloadConfig   `yaml:"payload"`
	Retry     RetryConfig     `yaml:"retry"`
	Journal   JournalConfig   `yaml:"journal"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	Will      MQTTWillConfig      `yaml:"will"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// ConnectTimeout bounds the initial connection, in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	// PublishTimeout bounds the wait for a publish acknowledgment, in seconds.
	PublishTimeout int `yaml:"publish_timeout"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	// URL overrides Host, Port and TLS when set (tcp://, ssl://, tls://, ws://).
	URL       string `yaml:"url"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	TLS       bool   `yaml:"tls"`
	ClientID  string `yaml:"client_id"`
	KeepAlive int    `yaml:"keep_alive"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig contains certificate settings for ssl:// connections.
type MQTTTLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Insecure bool   `yaml:"insecure"`
}

// MQTTWillConfig configures the Last Will and Testament.
// With a topic and no payload, JSON status messages are used.
type MQTTWillConfig struct {
	Topic   string `yaml:"topic"`
	Payload string `yaml:"payload"`
	QoS     int    `yaml:"qos"`
	Retain  bool   `yaml:"retain"`
}

// MQTTReconnectConfig contains MQTT reconnection settings, in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// PublishConfig configures the periodic publish loop.
type PublishConfig struct {
	Topic         string  `yaml:"topic"`
	QoS           int     `yaml:"qos"`
	Retained      bool    `yaml:"retained"`
	PeriodSeconds float64 `yaml:"period_seconds"`

	// MessageCount ends the run after that many sends. Zero or -1 is unbounded.
	MessageCount int `yaml:"message_count"`

	// Immediate sends the first message at start instead of one period later.
	Immediate bool `yaml:"immediate"`
}

// SubscribeConfig configures the optional subscribe handshake.
type SubscribeConfig struct {
	Topic          string  `yaml:"topic"`
	QoS            int     `yaml:"qos"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
}

// PayloadConfig selects the payload source. At most one of Message, File
// and StdinLines may be set; none selects the simulated sensor.
type PayloadConfig struct {
	Message    string `yaml:"message"`
	File       string `yaml:"file"`
	StdinLines bool   `yaml:"stdin_lines"`
	Delimiter  string `yaml:"delimiter"`
	MaxLength  int    `yaml:"max_length"`
	Format     string `yaml:"format"`
}

// RetryConfig configures recovery after a failed publish.
type RetryConfig struct {
	// Resubscribe re-runs the subscribe handshake after the reconnect.
	Resubscribe bool `yaml:"resubscribe"`
}

// JournalConfig contains SQLite delivery journal settings.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. A .env file (IO_ENV_FILE or ./.env), never overriding the real environment
//  4. Environment variables (IO_HOST, IO_PORT, IO_TOPIC, ...)
//
// A generated client ID is filled in before validation.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return defaultConfig()
}

// GenerateClientID returns ClientIDPrefix followed by 8 hex characters.
func GenerateClientID() string {
	return ClientIDPrefix + uuid.NewString()[:8]
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "localhost",
				Port:      1883,
				KeepAlive: 60,
			},
			Will: MQTTWillConfig{
				QoS:    1,
				Retain: true,
			},
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			ConnectTimeout: 10,
			PublishTimeout: 5,
		},
		Publish: PublishConfig{
			PeriodSeconds: 3,
		},
		Subscribe: SubscribeConfig{
			QoS:            1,
			TimeoutSeconds: 5,
		},
		Payload: PayloadConfig{
			Delimiter: "\n",
			MaxLength: 100,
			Format:    "text",
		},
		Retry: RetryConfig{
			Resubscribe: true,
		},
		Journal: JournalConfig{
			Path:        "./data/journal.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// loadDotEnv loads IO_ENV_FILE, or ./.env when present.
func loadDotEnv() error {
	path := os.Getenv("IO_ENV_FILE")
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Numeric variables that fail to parse are configuration errors.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	// Broker
	if v := os.Getenv("IO_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IO_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("IO_PORT %q is not a number", v))
		} else {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("IO_USER"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IO_KEY"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Topics; IO_PUBLISH_TOPIC wins over IO_TOPIC
	if v := os.Getenv("IO_TOPIC"); v != "" {
		cfg.Publish.Topic = v
	}
	if v := os.Getenv("IO_PUBLISH_TOPIC"); v != "" {
		cfg.Publish.Topic = v
	}
	if v := os.Getenv("IO_CONSUME_TOPIC"); v != "" {
		cfg.Subscribe.Topic = v
	}

	// Schedule
	if v := os.Getenv("IO_MESSAGE_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("IO_MESSAGE_COUNT %q is not a number", v))
		} else {
			cfg.Publish.MessageCount = n
		}
	}
	if v := os.Getenv("IO_MESSAGE_PERIOD_SECONDS"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("IO_MESSAGE_PERIOD_SECONDS %q is not a number", v))
		} else {
			cfg.Publish.PeriodSeconds = p
		}
	}

	// Logging
	if v := os.Getenv("IO_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// InfluxDB
	if v := os.Getenv("IO_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
// Every failure is reported in one error wrapping ErrInvalid.
func (c *Config) Validate() error {
	var errs []string

	// Broker
	if c.MQTT.Broker.URL == "" {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}
	if (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}
	if !validQoS(c.MQTT.Will.QoS) {
		errs = append(errs, "mqtt.will.qos must be 0, 1, or 2")
	}

	// Publish
	if c.Publish.Topic == "" {
		errs = append(errs, "publish.topic is required (set IO_TOPIC or IO_PUBLISH_TOPIC)")
	}
	if !validQoS(c.Publish.QoS) {
		errs = append(errs, "publish.qos must be 0, 1, or 2")
	}
	if c.Publish.PeriodSeconds <= 0 {
		errs = append(errs, "publish.period_seconds must be positive")
	}

	// Subscribe
	if !validQoS(c.Subscribe.QoS) {
		errs = append(errs, "subscribe.qos must be 0, 1, or 2")
	}
	if c.Subscribe.Topic != "" && c.Subscribe.TimeoutSeconds <= 0 {
		errs = append(errs, "subscribe.timeout_seconds must be positive")
	}

	// Payload
	sources := 0
	if c.Payload.Message != "" {
		sources++
	}
	if c.Payload.File != "" {
		sources++
	}
	if c.Payload.StdinLines {
		sources++
	}
	if sources > 1 {
		errs = append(errs, "only one of payload.message, payload.file and payload.stdin_lines may be set")
	}
	switch c.Payload.Format {
	case "", "text", "json", "msgpack":
	default:
		errs = append(errs, "payload.format must be text, json, or msgpack")
	}
	if c.Payload.MaxLength <= 0 {
		errs = append(errs, "payload.max_length must be positive")
	}

	// Journal
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}

	return nil
}

func validQoS(q int) bool {
	return q >= 0 && q <= 2
}

// Period returns the publish period as a Duration.
func (c *Config) Period() time.Duration {
	return time.Duration(c.Publish.PeriodSeconds * float64(time.Second))
}

// MessageLimit returns the send limit; zero means unbounded.
func (c *Config) MessageLimit() int {
	if c.Publish.MessageCount < 0 {
		return 0
	}
	return c.Publish.MessageCount
}

// HandshakeTimeout returns the subscribe acknowledgment timeout.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Subscribe.TimeoutSeconds * float64(time.Second))
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (c *MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeout) * time.Second
}

// GetPublishTimeout returns the MQTT publish timeout as a Duration.
func (c *MQTTConfig) GetPublishTimeout() time.Duration {
	return time.Duration(c.PublishTimeout) * time.Second
}

// GetKeepAlive returns the MQTT keepalive interval as a Duration.
func (c *MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(c.Broker.KeepAlive) * time.Second
}
