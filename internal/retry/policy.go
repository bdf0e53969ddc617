// Package retry recovers a failed publish with one reconnect and one retry.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/nerrad567/mqtt-client-app/internal/session"
)

// ErrGaveUp is matched by every error returned after recovery failed.
var ErrGaveUp = errors.New("retry: gave up on message")

// Outcome reports how a message got through.
type Outcome int

const (
	// Delivered means the first attempt succeeded.
	Delivered Outcome = iota + 1
	// Resent means the single retry after a reconnect succeeded.
	Resent
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Resent:
		return "resent"
	default:
		return "failed"
	}
}

// Session is the part of session.Session the policy drives.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Resubscribe(ctx context.Context) (session.SubscriptionOutcome, error)
	Publish(ctx context.Context, msg session.Message) error
}

// Logger defines the logging interface for the policy.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Options configures a Policy.
type Options struct {
	// Resubscribe re-runs the subscribe handshake after the reconnect.
	// Brokers that keep session state across reconnects do not need it.
	Resubscribe bool

	Logger Logger
}

// Stats counts recovery attempts since the policy was created.
type Stats struct {
	Reconnects int64
	Retries    int64
	GaveUp     int64
}

// Policy publishes through a session and recovers at most once per message.
// No backoff is applied and no second retry is ever made for one message.
type Policy struct {
	sess        Session
	resubscribe bool
	logger      Logger

	reconnects atomic.Int64
	retries    atomic.Int64
	gaveUp     atomic.Int64
}

// New creates a policy over sess.
func New(sess Session, opts Options) *Policy {
	p := &Policy{sess: sess, resubscribe: opts.Resubscribe, logger: opts.Logger}
	if p.logger == nil {
		p.logger = noopLogger{}
	}
	return p
}

// Publish sends msg and runs OnPublishFailure if the first attempt fails.
func (p *Policy) Publish(ctx context.Context, msg session.Message) (Outcome, error) {
	err := p.sess.Publish(ctx, msg)
	if err == nil {
		return Delivered, nil
	}
	return p.OnPublishFailure(ctx, msg, err)
}

// OnPublishFailure performs one Disconnect+Connect, optionally one
// Resubscribe, then one re-publish of msg.
//
// Invalid messages and interrupted publishes are not retried. When the
// reconnect itself fails the re-publish is skipped.
func (p *Policy) OnPublishFailure(ctx context.Context, msg session.Message, failure error) (Outcome, error) {
	var pf *session.PublishFailure
	if errors.As(failure, &pf) {
		switch pf.Reason {
		case session.ReasonInvalid, session.ReasonInterrupted:
			return p.giveUp(msg, failure)
		}
	}

	p.logger.Warn("publish failed, reconnecting once", "topic", msg.Topic, "error", failure)

	p.reconnects.Add(1)
	if err := p.sess.Disconnect(); err != nil {
		p.logger.Warn("disconnect before reconnect failed", "error", err)
	}
	if err := p.sess.Connect(ctx); err != nil {
		return p.giveUp(msg, fmt.Errorf("reconnect: %w", err))
	}

	if p.resubscribe {
		if _, err := p.sess.Resubscribe(ctx); err != nil {
			if errors.Is(err, session.ErrInterrupted) {
				return p.giveUp(msg, err)
			}
			p.logger.Warn("resubscribe after reconnect failed", "error", err)
		}
	}

	p.retries.Add(1)
	if err := p.sess.Publish(ctx, msg); err != nil {
		return p.giveUp(msg, fmt.Errorf("retry: %w", err))
	}

	p.logger.Info("message resent after reconnect", "topic", msg.Topic)
	return Resent, nil
}

// Stats returns a snapshot of the counters.
func (p *Policy) Stats() Stats {
	return Stats{
		Reconnects: p.reconnects.Load(),
		Retries:    p.retries.Load(),
		GaveUp:     p.gaveUp.Load(),
	}
}

func (p *Policy) giveUp(msg session.Message, err error) (Outcome, error) {
	p.gaveUp.Add(1)
	return 0, fmt.Errorf("%w: topic %q: %w", ErrGaveUp, msg.Topic, err)
}
