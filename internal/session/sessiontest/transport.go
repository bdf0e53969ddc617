// Package sessiontest provides an in-memory session.Transport for tests.
//
// The fake behaves like the paho-backed transport as far as the session can
// tell: OnConnect fires with code 0 on every successful Connect, subscribe
// acknowledgments arrive asynchronously, and publishes fail when not
// connected. Failures are scripted per call. With SetDeferConnect the
// OnConnect of a successful Connect is held back until ConfirmConnect, the
// way paho may run it after the connect token has completed.
package sessiontest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotConnected is returned by Publish and Subscribe while disconnected.
var ErrNotConnected = errors.New("sessiontest: not connected")

// ErrInjected is a convenient error for scripted failures.
var ErrInjected = errors.New("sessiontest: injected failure")

// CodeError is a connect error carrying a broker return code.
type CodeError struct{ Code byte }

func (e *CodeError) Error() string    { return "sessiontest: connection refused" }
func (e *CodeError) ReturnCode() byte { return e.Code }

// TimeoutError is an error that reports itself as a timeout.
type TimeoutError struct{}

func (TimeoutError) Error() string { return "sessiontest: operation timed out" }
func (TimeoutError) Timeout() bool { return true }

// Published is one message accepted by the fake.
type Published struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
	At       time.Time
}

// Transport is a scriptable fake. The zero value is not usable; call New.
type Transport struct {
	mu sync.Mutex

	onConnect   func(code byte)
	onLost      func(err error)
	onSubscribe func(filter string, granted []byte)
	onMessage   func(topic string, qos byte, payload []byte)

	connected bool

	connectErrs []error
	publishErrs []error
	granted     []byte
	autoAck     bool
	ackDelay    time.Duration
	deferConn   bool

	connects    int
	disconnects int
	subscribes  []string
	published   []Published
	attempts    int
}

// New returns a fake that accepts everything and acknowledges every
// subscription with the requested QoS.
func New() *Transport {
	return &Transport{autoAck: true}
}

// =============================================================================
// Scripting
// =============================================================================

// FailConnect queues errors returned by the next Connect calls, in order.
// A nil entry lets that call succeed.
func (t *Transport) FailConnect(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErrs = append(t.connectErrs, errs...)
}

// FailPublish queues errors returned by the next Publish calls, in order.
// A nil entry lets that call succeed.
func (t *Transport) FailPublish(errs ...error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.publishErrs = append(t.publishErrs, errs...)
}

// SetGranted sets the QoS sequence carried by automatic acknowledgments.
func (t *Transport) SetGranted(qos ...byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.granted = append([]byte(nil), qos...)
}

// SetAutoAck enables or disables automatic subscribe acknowledgments.
func (t *Transport) SetAutoAck(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.autoAck = enabled
}

// SetAckDelay delays automatic acknowledgments.
func (t *Transport) SetAckDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ackDelay = d
}

// SetDeferConnect makes Connect return without firing OnConnect. The
// confirmation is delivered later by ConfirmConnect.
func (t *Transport) SetDeferConnect(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deferConn = enabled
}

// =============================================================================
// Simulated broker events
// =============================================================================

// ConfirmConnect delivers a held-back on-connect callback with code 0.
func (t *Transport) ConfirmConnect() {
	t.mu.Lock()
	cb := t.onConnect
	t.mu.Unlock()
	if cb != nil {
		cb(0)
	}
}

// Ack delivers a subscribe acknowledgment for filter.
func (t *Transport) Ack(filter string, granted ...byte) {
	t.mu.Lock()
	cb := t.onSubscribe
	t.mu.Unlock()
	if cb != nil {
		cb(filter, granted)
	}
}

// DropConnection simulates a lost connection while the library retries.
func (t *Transport) DropConnection(err error) {
	t.mu.Lock()
	t.connected = false
	cb := t.onLost
	t.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// AutoReconnect simulates the library re-establishing a lost connection.
func (t *Transport) AutoReconnect() {
	t.mu.Lock()
	t.connected = true
	cb := t.onConnect
	t.mu.Unlock()
	if cb != nil {
		cb(0)
	}
}

// Refuse simulates an on-connect callback carrying a non-zero return code.
func (t *Transport) Refuse(code byte) {
	t.mu.Lock()
	cb := t.onConnect
	t.mu.Unlock()
	if cb != nil {
		cb(code)
	}
}

// Deliver simulates an incoming message.
func (t *Transport) Deliver(topic string, qos byte, payload []byte) {
	t.mu.Lock()
	cb := t.onMessage
	t.mu.Unlock()
	if cb != nil {
		cb(topic, qos, payload)
	}
}

// =============================================================================
// Inspection
// =============================================================================

// Connects returns the number of Connect calls.
func (t *Transport) Connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

// Disconnects returns the number of Disconnect calls.
func (t *Transport) Disconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

// Subscribes returns the filters passed to Subscribe, in call order.
func (t *Transport) Subscribes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.subscribes...)
}

// Published returns the messages accepted so far.
func (t *Transport) Published() []Published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Published(nil), t.published...)
}

// PublishAttempts returns the number of Publish calls, failed ones included.
func (t *Transport) PublishAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// IsConnected reports the fake's connection state.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// =============================================================================
// session.Transport
// =============================================================================

// Connect implements session.Transport.
func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	t.connects++
	var err error
	if len(t.connectErrs) > 0 {
		err = t.connectErrs[0]
		t.connectErrs = t.connectErrs[1:]
	}
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.connected = true
	cb := t.onConnect
	if t.deferConn {
		cb = nil
	}
	t.mu.Unlock()

	if cb != nil {
		cb(0)
	}
	return nil
}

// Disconnect implements session.Transport.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	t.connected = false
	return nil
}

// Subscribe implements session.Transport.
func (t *Transport) Subscribe(filter string, qos byte) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.subscribes = append(t.subscribes, filter)
	auto := t.autoAck
	delay := t.ackDelay
	granted := t.granted
	if granted == nil {
		granted = []byte{qos}
	}
	cb := t.onSubscribe
	t.mu.Unlock()

	if !auto || cb == nil {
		return nil
	}
	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		cb(filter, granted)
	}()
	return nil
}

// Publish implements session.Transport.
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts++

	if len(t.publishErrs) > 0 {
		err := t.publishErrs[0]
		t.publishErrs = t.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	if !t.connected {
		return ErrNotConnected
	}

	t.published = append(t.published, Published{
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		QoS:      qos,
		Retained: retained,
		At:       time.Now(),
	})
	return nil
}

// SetOnConnect implements session.Transport.
func (t *Transport) SetOnConnect(cb func(code byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onConnect = cb
}

// SetOnConnectionLost implements session.Transport.
func (t *Transport) SetOnConnectionLost(cb func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLost = cb
}

// SetOnSubscribe implements session.Transport.
func (t *Transport) SetOnSubscribe(cb func(filter string, granted []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSubscribe = cb
}

// SetOnMessage implements session.Transport.
func (t *Transport) SetOnMessage(cb func(topic string, qos byte, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMessage = cb
}
