package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/mqtt-client-app/internal/shutdown"
)

// Logger defines the logging interface for the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Message is a single MQTT application message.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Options configures a Session. The zero value is usable.
type Options struct {
	// Logger receives lifecycle events. Defaults to a no-op logger.
	Logger Logger

	// Stop is observed by every blocking wait. Nil means waits end only on
	// their own timer or context.
	Stop *shutdown.Signal

	// OnMessage receives messages for the registered subscription.
	// It runs on the library's goroutine and must not block for long.
	OnMessage func(Message)
}

// Session tracks the connection and subscription state of one client.
//
// It exclusively owns its Transport. Library callbacks mutate state through
// the same mutex the handshake waits on, and every change is broadcast by
// closing the current changed channel.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	transport Transport
	logger    Logger
	stop      *shutdown.Signal
	onMessage func(Message)

	mu      sync.Mutex
	state   State
	changed chan struct{}

	// awaitingFirst is set by Connect until the transport confirms that
	// connection through OnConnect; later confirmations are reconnections.
	awaitingFirst bool

	// sub is the registered subscription, re-run after every reconnection.
	sub *subscription

	// ackSeq counts acknowledgments for sub; outcome holds the latest one.
	ackSeq  uint64
	outcome SubscriptionOutcome

	// wg tracks goroutines started from library callbacks.
	wg sync.WaitGroup
}

// New creates a Disconnected session and registers its callbacks on t.
func New(t Transport, opts Options) *Session {
	s := &Session{
		transport: t,
		logger:    opts.Logger,
		stop:      opts.Stop,
		onMessage: opts.OnMessage,
		state:     StateDisconnected,
		changed:   make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}

	t.SetOnConnect(s.handleConnect)
	t.SetOnConnectionLost(s.handleConnectionLost)
	t.SetOnSubscribe(s.handleSubscribe)
	t.SetOnMessage(s.handleMessage)

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscription returns the registered subscription filter, if any.
func (s *Session) Subscription() (filter string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return "", false
	}
	return s.sub.filter, true
}

// Connect establishes the connection. It is valid only from Disconnected.
//
// On failure the transport is released, the session returns to
// Disconnected and the returned error is a *ConnectError.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: connect called while %s", ErrInvalidState, state)
	}
	s.setState(StateConnecting)
	s.awaitingFirst = true
	s.mu.Unlock()

	s.logger.Debug("connecting to broker")

	if err := s.transport.Connect(ctx); err != nil {
		s.release()
		return newConnectError(err)
	}

	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.setState(StateConnected)
	case StateConnected, StateSubscribed:
		// OnConnect already confirmed it.
	default:
		// A refusal callback tore the connection down while we waited.
		s.mu.Unlock()
		return newConnectError(errors.New("connection closed during connect"))
	}
	s.mu.Unlock()

	s.logger.Info("connected to broker")
	return nil
}

// Disconnect releases the connection and moves the session to Disconnected.
// It is a no-op when already Disconnected or Disconnecting, so the
// underlying handle is released exactly once per connection.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.state == StateDisconnected || s.state == StateDisconnecting {
		s.mu.Unlock()
		return nil
	}
	s.setState(StateDisconnecting)
	s.mu.Unlock()

	err := s.transport.Disconnect()

	s.mu.Lock()
	s.awaitingFirst = false
	s.setState(StateDisconnected)
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrDisconnectFailed, err)
	}
	s.logger.Info("disconnected from broker")
	return nil
}

// release is the failure-path cleanup for Connect.
func (s *Session) release() {
	if err := s.transport.Disconnect(); err != nil {
		s.logger.Debug("releasing failed connection", "error", err)
	}
	s.mu.Lock()
	s.awaitingFirst = false
	s.setState(StateDisconnected)
	s.mu.Unlock()
}

// Publish sends msg. Every failure is returned as a *PublishFailure.
func (s *Session) Publish(ctx context.Context, msg Message) error {
	if msg.Topic == "" {
		return &PublishFailure{Reason: ReasonInvalid, Err: ErrInvalidTopic}
	}
	if msg.QoS > maxQoS {
		return &PublishFailure{Reason: ReasonInvalid, Err: ErrInvalidQoS}
	}

	if state := s.State(); !state.CanPublish() {
		return &PublishFailure{
			Reason: ReasonNotConnected,
			Err:    fmt.Errorf("%w: session is %s", ErrNotConnected, state),
		}
	}

	if err := s.transport.Publish(ctx, msg.Topic, msg.Payload, msg.QoS, msg.Retained); err != nil {
		return &PublishFailure{Reason: classifyPublishError(err), Err: err}
	}
	return nil
}

// classifyPublishError maps a transport error to a PublishReason.
func classifyPublishError(err error) PublishReason {
	var timeout interface{ Timeout() bool }
	switch {
	case errors.As(err, &timeout) && timeout.Timeout():
		return ReasonTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonInterrupted
	default:
		return ReasonRejected
	}
}

// Wait blocks until goroutines started from library callbacks have returned.
// Call it after Disconnect during shutdown.
func (s *Session) Wait() {
	s.wg.Wait()
}

// setState changes the state and wakes every waiter. Caller holds s.mu.
func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("session state changed", "from", s.state.String(), "to", next.String())
	s.state = next
	s.broadcast()
}

// broadcast wakes all waiters. Caller holds s.mu.
func (s *Session) broadcast() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// handleConnect is the transport's on-connect callback.
func (s *Session) handleConnect(code byte) {
	s.mu.Lock()
	if !s.state.active() {
		// Late confirmation after Disconnect.
		s.mu.Unlock()
		return
	}

	if code != 0 {
		explicit := s.awaitingFirst && s.state == StateConnecting
		s.mu.Unlock()
		s.logger.Warn("broker refused connection", "code", code, "reason", connackText(code))
		if !explicit {
			// Connect owns cleanup for its own attempt; anything else is
			// torn down here.
			s.goDisconnect()
		}
		return
	}

	first := s.awaitingFirst
	s.awaitingFirst = false
	if !first || s.state == StateConnecting {
		// The first confirmation may trail Connect and even Subscribe.
		s.setState(StateConnected)
	}
	var sub *subscription
	if !first && s.sub != nil {
		copied := *s.sub
		sub = &copied
	}
	s.mu.Unlock()

	if sub != nil {
		s.logger.Info("connection re-established, resubscribing", "filter", sub.filter)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.resubscribe(*sub)
		}()
	}
}

// handleConnectionLost is the transport's connection-lost callback.
func (s *Session) handleConnectionLost(err error) {
	s.mu.Lock()
	if s.state == StateConnected || s.state == StateSubscribed {
		s.setState(StateConnecting)
	}
	s.mu.Unlock()
	s.logger.Warn("connection to broker lost", "error", err)
}

// handleMessage is the transport's message callback.
func (s *Session) handleMessage(topic string, qos byte, payload []byte) {
	if s.onMessage == nil {
		return
	}
	s.onMessage(Message{Topic: topic, QoS: qos, Payload: payload})
}

// goDisconnect disconnects off the library's callback goroutine.
func (s *Session) goDisconnect() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Disconnect(); err != nil {
			s.logger.Warn("disconnect after refusal failed", "error", err)
		}
	}()
}
