package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"IO_HOST", "IO_PORT", "IO_USER", "IO_KEY",
	"IO_TOPIC", "IO_PUBLISH_TOPIC", "IO_CONSUME_TOPIC",
	"IO_MESSAGE_COUNT", "IO_MESSAGE_PERIOD_SECONDS",
	"IO_LOG_LEVEL", "IO_INFLUXDB_TOKEN", "IO_ENV_FILE",
}

// clearEnv blanks every variable Load reads; empty values are ignored.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
mqtt:
  broker:
    host: "broker.local"
    port: 8883
    tls: true
    client_id: "test-client"
  auth:
    username: "alice"
  will:
    topic: "clients/test/status"
publish:
  topic: "sensors/temp"
  qos: 1
  period_seconds: 0.5
  message_count: 10
subscribe:
  topic: "commands/#"
payload:
  format: json
journal:
  enabled: true
  path: "/tmp/journal.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Broker.ClientID != "test-client" {
		t.Errorf("MQTT.Broker.ClientID = %q, want %q", cfg.MQTT.Broker.ClientID, "test-client")
	}
	if cfg.Period() != 500*time.Millisecond {
		t.Errorf("Period() = %v, want 500ms", cfg.Period())
	}
	if cfg.MessageLimit() != 10 {
		t.Errorf("MessageLimit() = %d, want 10", cfg.MessageLimit())
	}
	if cfg.Subscribe.Topic != "commands/#" {
		t.Errorf("Subscribe.Topic = %q", cfg.Subscribe.Topic)
	}
	// Defaults survive for keys the file does not mention.
	if cfg.Subscribe.QoS != 1 || cfg.HandshakeTimeout() != 5*time.Second {
		t.Errorf("Subscribe defaults = %+v", cfg.Subscribe)
	}
	if !cfg.MQTT.Will.Retain || cfg.MQTT.Will.QoS != 1 {
		t.Errorf("Will defaults = %+v", cfg.MQTT.Will)
	}
	if !cfg.Retry.Resubscribe {
		t.Error("Retry.Resubscribe = false, want default true")
	}
}

func TestLoad_NoFile_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv("IO_TOPIC", "io/topic")
	t.Setenv("IO_HOST", "mqtt.example")
	t.Setenv("IO_PORT", "1884")
	t.Setenv("IO_USER", "bob")
	t.Setenv("IO_KEY", "secret")
	t.Setenv("IO_CONSUME_TOPIC", "io/in")
	t.Setenv("IO_MESSAGE_COUNT", "-1")
	t.Setenv("IO_MESSAGE_PERIOD_SECONDS", "1.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Publish.Topic != "io/topic" {
		t.Errorf("Publish.Topic = %q", cfg.Publish.Topic)
	}
	if cfg.MQTT.Broker.Host != "mqtt.example" || cfg.MQTT.Broker.Port != 1884 {
		t.Errorf("Broker = %+v", cfg.MQTT.Broker)
	}
	if cfg.MQTT.Auth.Username != "bob" || cfg.MQTT.Auth.Password != "secret" {
		t.Errorf("Auth = %+v", cfg.MQTT.Auth)
	}
	if cfg.Subscribe.Topic != "io/in" {
		t.Errorf("Subscribe.Topic = %q", cfg.Subscribe.Topic)
	}
	if cfg.MessageLimit() != 0 {
		t.Errorf("MessageLimit() = %d, want 0 (unbounded)", cfg.MessageLimit())
	}
	if cfg.Period() != 1500*time.Millisecond {
		t.Errorf("Period() = %v, want 1.5s", cfg.Period())
	}
}

func TestLoad_PublishTopicWinsOverTopic(t *testing.T) {
	clearEnv(t)
	t.Setenv("IO_TOPIC", "generic")
	t.Setenv("IO_PUBLISH_TOPIC", "specific")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Publish.Topic != "specific" {
		t.Errorf("Publish.Topic = %q, want %q", cfg.Publish.Topic, "specific")
	}
}

func TestLoad_GeneratesClientID(t *testing.T) {
	clearEnv(t)
	t.Setenv("IO_TOPIC", "t")

	a, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	b, _ := Load("")

	id := a.MQTT.Broker.ClientID
	if !strings.HasPrefix(id, ClientIDPrefix) || len(id) != len(ClientIDPrefix)+8 {
		t.Errorf("ClientID = %q, want %s<8 hex>", id, ClientIDPrefix)
	}
	if id == b.MQTT.Broker.ClientID {
		t.Errorf("generated client IDs collide: %q", id)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	clearEnv(t)
	envPath := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envPath, []byte("IO_TOPIC=from/dotenv\nIO_HOST=dotenv-host\n"), 0600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("IO_ENV_FILE", envPath)
	// Unset (restored by t.Setenv cleanup) so the file can supply IO_TOPIC,
	// while IO_HOST stays set in the real environment and must win.
	os.Unsetenv("IO_TOPIC")
	t.Setenv("IO_HOST", "real-host")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Publish.Topic != "from/dotenv" {
		t.Errorf("Publish.Topic = %q, want %q", cfg.Publish.Topic, "from/dotenv")
	}
	if cfg.MQTT.Broker.Host != "real-host" {
		t.Errorf("Broker.Host = %q, want real environment to win", cfg.MQTT.Broker.Host)
	}
}

func TestLoad_DotEnvMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("IO_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("IO_TOPIC", "t")

	if _, err := Load(""); err == nil {
		t.Error("Load() expected error for missing IO_ENV_FILE, got nil")
	}
}

func TestLoad_BadNumericEnv(t *testing.T) {
	for _, key := range []string{"IO_PORT", "IO_MESSAGE_COUNT", "IO_MESSAGE_PERIOD_SECONDS"} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("IO_TOPIC", "t")
			t.Setenv(key, "abc")

			_, err := Load("")
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
publish:
  topic: ""
`)

	_, err := Load(path)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Load() error = %v, want ErrInvalid for empty publish.topic", err)
	}
}

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Publish.Topic = "sensors/temp"
	cfg.MQTT.Broker.ClientID = "test"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{
			name:    "zero period",
			mutate:  func(c *Config) { c.Publish.PeriodSeconds = 0 },
			wantErr: "publish.period_seconds",
		},
		{
			name:    "negative period",
			mutate:  func(c *Config) { c.Publish.PeriodSeconds = -1 },
			wantErr: "publish.period_seconds",
		},
		{
			name:    "publish qos",
			mutate:  func(c *Config) { c.Publish.QoS = 3 },
			wantErr: "publish.qos",
		},
		{
			name:    "subscribe qos",
			mutate:  func(c *Config) { c.Subscribe.QoS = -1 },
			wantErr: "subscribe.qos",
		},
		{
			name:    "will qos",
			mutate:  func(c *Config) { c.MQTT.Will.QoS = 5 },
			wantErr: "mqtt.will.qos",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name: "url skips host and port checks",
			mutate: func(c *Config) {
				c.MQTT.Broker.URL = "tcp://broker:1883"
				c.MQTT.Broker.Port = 0
			},
		},
		{
			name: "conflicting payload sources",
			mutate: func(c *Config) {
				c.Payload.Message = "hi"
				c.Payload.StdinLines = true
			},
			wantErr: "only one of payload",
		},
		{
			name:    "unknown payload format",
			mutate:  func(c *Config) { c.Payload.Format = "xml" },
			wantErr: "payload.format",
		},
		{
			name:    "cert without key",
			mutate:  func(c *Config) { c.MQTT.TLS.CertFile = "client.crt" },
			wantErr: "mqtt.tls.cert_file",
		},
		{
			name: "journal without path",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantErr: "journal.path",
		},
		{
			name:    "influxdb without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() error = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateReportsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Publish.Topic = ""
	cfg.Publish.QoS = 9

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil")
	}
	for _, want := range []string{"publish.topic", "publish.qos"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %q, missing %q", err, want)
		}
	}
}

func TestMQTTConfig_Durations(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.MQTT.GetConnectTimeout(); got != 10*time.Second {
		t.Errorf("GetConnectTimeout() = %v, want 10s", got)
	}
	if got := cfg.MQTT.GetPublishTimeout(); got != 5*time.Second {
		t.Errorf("GetPublishTimeout() = %v, want 5s", got)
	}
	if got := cfg.MQTT.GetKeepAlive(); got != 60*time.Second {
		t.Errorf("GetKeepAlive() = %v, want 60s", got)
	}
}
