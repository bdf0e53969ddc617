// Package session owns the lifecycle of one MQTT client connection.
//
// A Session walks the states
//
//	Disconnected → Connecting → Connected → Subscribed → Disconnecting → Disconnected
//
// and exposes three blocking operations: Connect, Subscribe (the subscribe
// handshake) and Publish. Every blocking wait is bounded by a timer, the
// caller's context and the process stop signal from package shutdown.
//
// The network side is abstracted behind Transport. Production code uses the
// paho-backed adapter in internal/infrastructure/mqtt; tests use the fake in
// session/sessiontest.
//
// Usage:
//
//	sess := session.New(transport, session.Options{
//	    Logger: log,
//	    Stop:   shutdown.Process(),
//	})
//	if err := sess.Connect(ctx); err != nil {
//	    return err
//	}
//	defer sess.Disconnect()
//
//	if _, err := sess.Subscribe(ctx, "sensors/#", 1, 5*time.Second); err != nil {
//	    return err
//	}
//	err := sess.Publish(ctx, session.Message{Topic: "sensors/a", Payload: []byte("42")})
//
// Reconnection is left to the client library. When it re-establishes a lost
// connection the Session re-runs the subscribe handshake for the registered
// filter, and disconnects if the broker now refuses every entry.
package session
