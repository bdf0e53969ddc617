// Package logging provides structured logging for the MQTT client.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Features
//
//   - Text output by default (human-readable)
//   - JSON output for log shippers
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error (IO_LOG_LEVEL)
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout, discard
//
// Logs default to stderr because stdout carries the console lines
// ("Publishing message: ...") that scripts read.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected to broker", "url", url)
//
// Never log broker passwords or InfluxDB tokens.
package logging
