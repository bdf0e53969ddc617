// Package mqtt provides the paho-backed transport used by a session.
//
// This package manages:
//   - Connection to the broker with library-driven auto-reconnect
//   - Message publishing bounded by publish_timeout
//   - Non-blocking subscribe requests whose SUBACK arrives as a callback
//   - Last Will and Testament (LWT) and JSON online/offline status
//   - Topic name and filter validation
//
// # Architecture
//
// The client implements session.Transport. It never decides on retries or
// resubscriptions; the session and retry layers do that.
//
//	scheduler -> retry.Policy -> session.Session -> mqtt.Client -> broker
//
// # Security Considerations
//
//   - ssl://, tls://, mqtts:// and wss:// broker URLs enable TLS
//   - A CA bundle and client certificate may be supplied via config
//   - tls.insecure disables verification and is meant for test brokers
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	sess := session.New(client, session.Options{Logger: log, Stop: stop})
//	if err := sess.Connect(ctx); err != nil {
//	    return err
//	}
//	defer sess.Disconnect()
package mqtt
