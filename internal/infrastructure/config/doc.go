// Package config handles loading and validating the MQTT client configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Loading a .env file without overriding the real environment
//   - Overriding with the IO_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should come from IO_KEY and
//     IO_INFLUXDB_TOKEN rather than from the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("IO_CONFIG"))
//	if err != nil {
//	    return err // errors.Is(err, config.ErrInvalid) for validation failures
//	}
//	period := cfg.Period()
package config
