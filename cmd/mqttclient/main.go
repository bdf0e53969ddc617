// mqttclient publishes a periodic message stream to an MQTT broker and,
// optionally, prints the messages received on one subscription.
//
// Configuration comes from a YAML file (IO_CONFIG, default
// configs/config.yaml when present) overlaid with IO_* environment
// variables. Console lines go to stdout and logs to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"

	"github.com/nerrad567/mqtt-client-app/internal/app"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-client-app/internal/shutdown"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path, used only when the file exists.
const defaultConfigPath = "configs/config.yaml"

func main() {
	stop := shutdown.Process()
	release := stop.NotifyOnSignals(os.Interrupt, syscall.SIGTERM)

	err := run(context.Background(), stop)
	release()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(app.ExitCode(err))
	}
}

// run loads the configuration and executes one client run. It is separated
// from main for testability.
func run(ctx context.Context, stop *shutdown.Signal) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting mqtt client",
		"version", version,
		"commit", commit,
		"build_date", date,
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	client := mqtt.New(cfg.MQTT)
	client.SetLogger(log.Component("mqtt"))
	log.Info("broker configured", "url", client.URL())

	_, err = app.Run(ctx, cfg, app.Deps{
		Transport: client,
		Stop:      stop,
		Stdin:     os.Stdin,
		Stdout:    os.Stdout,
		Colorize:  !color.NoColor,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	log.Info("mqtt client stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IO_CONFIG if set, otherwise defaultConfigPath when that file exists.
// An empty result means defaults plus environment only.
func getConfigPath() string {
	if path := os.Getenv("IO_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return defaultConfigPath
}
