package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultHandshakeTimeout bounds the wait for a subscribe acknowledgment.
const DefaultHandshakeTimeout = 5 * time.Second

// subscription is the registered subscribe request, kept for re-runs.
type subscription struct {
	filter  string
	qos     byte
	timeout time.Duration
}

// Subscribe registers a subscription and blocks until the broker
// acknowledges it or timeout elapses.
//
// The wait ends when:
//   - an acknowledgment arrives: success moves Connected → Subscribed,
//     an acknowledgment granting nothing returns ErrAllSubscriptionsRejected
//   - timeout elapses: *HandshakeTimeoutError (matches ErrHandshakeTimeout)
//   - a stop is requested or ctx ends: ErrInterrupted
//   - the session is disconnected: ErrNotConnected
//
// The subscription stays registered and the same handshake is re-run after
// every automatic reconnection. A timeout of zero uses DefaultHandshakeTimeout.
func (s *Session) Subscribe(ctx context.Context, filter string, qos byte, timeout time.Duration) (SubscriptionOutcome, error) {
	if filter == "" {
		return SubscriptionOutcome{}, ErrInvalidTopic
	}
	if qos > maxQoS {
		return SubscriptionOutcome{}, ErrInvalidQoS
	}
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	s.mu.Lock()
	if !s.state.CanPublish() {
		state := s.state
		s.mu.Unlock()
		return SubscriptionOutcome{}, fmt.Errorf("%w: subscribe called while %s", ErrNotConnected, state)
	}
	sub := subscription{filter: filter, qos: qos, timeout: timeout}
	s.sub = &sub
	s.mu.Unlock()

	return s.handshake(ctx, sub)
}

// Resubscribe re-runs the handshake for the registered subscription.
// It returns a zero outcome and no error when nothing is registered.
func (s *Session) Resubscribe(ctx context.Context) (SubscriptionOutcome, error) {
	s.mu.Lock()
	if s.sub == nil {
		s.mu.Unlock()
		return SubscriptionOutcome{}, nil
	}
	if !s.state.CanPublish() {
		state := s.state
		s.mu.Unlock()
		return SubscriptionOutcome{}, fmt.Errorf("%w: resubscribe called while %s", ErrNotConnected, state)
	}
	sub := *s.sub
	s.mu.Unlock()

	return s.handshake(ctx, sub)
}

// handshake issues the subscribe request and waits for its outcome.
//
// The predicate (ack sequence, state, stop flag, expiry) is authoritative;
// channel wakes are only hints, so it is re-checked after every wake.
func (s *Session) handshake(ctx context.Context, sub subscription) (SubscriptionOutcome, error) {
	s.mu.Lock()
	seq := s.ackSeq
	s.mu.Unlock()

	s.logger.Debug("subscribing", "filter", sub.filter, "qos", sub.qos, "timeout", sub.timeout)

	if err := s.transport.Subscribe(sub.filter, sub.qos); err != nil {
		return SubscriptionOutcome{}, fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	timer := time.NewTimer(sub.timeout)
	defer timer.Stop()
	expired := false

	for {
		s.mu.Lock()
		acked := s.ackSeq != seq
		outcome := s.outcome
		state := s.state
		changed := s.changed
		if acked && outcome.Granted && state == StateConnected {
			s.setState(StateSubscribed)
		}
		s.mu.Unlock()

		switch {
		case acked && outcome.Granted:
			s.logger.Info("subscribed", "filter", sub.filter, "granted_qos", outcome.GrantedQoS)
			return outcome, nil
		case acked:
			return outcome, fmt.Errorf("%w: filter %q", ErrAllSubscriptionsRejected, sub.filter)
		case state == StateDisconnected || state == StateDisconnecting:
			return SubscriptionOutcome{}, fmt.Errorf("%w: session %s during handshake", ErrNotConnected, state)
		case s.stopped():
			return SubscriptionOutcome{}, ErrInterrupted
		case expired:
			return SubscriptionOutcome{}, &HandshakeTimeoutError{Filter: sub.filter, Timeout: sub.timeout}
		}

		select {
		case <-changed:
		case <-timer.C:
			expired = true
		case <-s.stopDone():
		case <-ctx.Done():
			return SubscriptionOutcome{}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		}
	}
}

// resubscribe re-runs the handshake after an automatic reconnection.
// A broker that now refuses every entry leaves nothing worth staying
// connected for, so the session is torn down.
func (s *Session) resubscribe(sub subscription) {
	outcome, err := s.handshake(context.Background(), sub)
	if err == nil {
		return
	}
	if errors.Is(err, ErrAllSubscriptionsRejected) {
		s.logger.Error("resubscribe rejected by broker, disconnecting",
			"filter", sub.filter,
			"granted_qos", outcome.GrantedQoS,
		)
		if derr := s.Disconnect(); derr != nil {
			s.logger.Warn("disconnect after rejected resubscribe failed", "error", derr)
		}
		return
	}
	s.logger.Warn("resubscribe failed", "filter", sub.filter, "error", err)
}

// handleSubscribe is the transport's subscribe-acknowledgment callback.
func (s *Session) handleSubscribe(filter string, granted []byte) {
	s.mu.Lock()
	if s.sub == nil || s.sub.filter != filter {
		s.mu.Unlock()
		s.logger.Debug("ignoring acknowledgment for unregistered filter", "filter", filter)
		return
	}
	s.outcome = NewSubscriptionOutcome(granted)
	s.ackSeq++
	s.broadcast()
	s.mu.Unlock()
}

// stopped reports whether the stop signal is set.
func (s *Session) stopped() bool {
	return s.stop != nil && s.stop.Stopped()
}

// stopDone returns the stop channel, or nil (blocks forever) without a signal.
func (s *Session) stopDone() <-chan struct{} {
	if s.stop == nil {
		return nil
	}
	return s.stop.Done()
}
