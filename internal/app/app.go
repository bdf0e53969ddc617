// Package app wires the session, handshake, scheduler and retry policy into
// one client run.
//
// Run validates the schedule and payload source before any network
// activity, connects, performs the optional subscribe handshake, then drives
// the publish loop until it is stopped, reaches its message limit or drains
// its source. The connection is released on every exit path.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/nerrad567/mqtt-client-app/internal/console"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-client-app/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-client-app/internal/journal"
	"github.com/nerrad567/mqtt-client-app/internal/payload"
	"github.com/nerrad567/mqtt-client-app/internal/retry"
	"github.com/nerrad567/mqtt-client-app/internal/scheduler"
	"github.com/nerrad567/mqtt-client-app/internal/session"
	"github.com/nerrad567/mqtt-client-app/internal/shutdown"
)

// ErrConfig marks configuration problems found while building the run.
var ErrConfig = errors.New("app: invalid configuration")

// Deps holds the collaborators of a run. Only Transport is required.
type Deps struct {
	Transport session.Transport

	// Stop ends the run cooperatively. Defaults to shutdown.Process().
	Stop *shutdown.Signal

	// Stdin feeds the stdin_lines payload source. Defaults to os.Stdin.
	Stdin io.Reader

	// Stdout receives console lines. Defaults to os.Stdout.
	Stdout   io.Writer
	Colorize bool

	Logger *logging.Logger

	// Rand seeds the simulated sensor. Nil picks a random seed.
	Rand *rand.Rand

	// OnFinish, if set, receives the session state once the connection
	// has been released.
	OnFinish func(session.State)
}

func (d *Deps) setDefaults() {
	if d.Stop == nil {
		d.Stop = shutdown.Process()
	}
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	if d.Stdout == nil {
		d.Stdout = os.Stdout
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
}

// Run executes one client run with cfg.
//
// A stop requested while connecting or subscribing ends the run cleanly
// with a nil error. Inability to connect or subscribe is returned, as is a
// payload read error, which ends the loop. Publish failures that the retry
// policy gives up on are logged and the loop continues.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (scheduler.Result, error) {
	if deps.Transport == nil {
		return scheduler.Result{}, errors.New("app: no transport")
	}
	deps.setDefaults()
	log := deps.Logger

	// Configuration errors surface before any network activity.
	sched, err := scheduler.NewSchedule(cfg.Period(), cfg.MessageLimit())
	if err != nil {
		return scheduler.Result{}, err
	}
	sched.Immediate = cfg.Publish.Immediate

	src, err := NewSource(cfg.Payload, deps.Stdin, deps.Rand)
	if err != nil {
		return scheduler.Result{}, err
	}

	stop := deps.Stop
	runCtx, cancel := stop.Context(ctx)
	defer cancel()

	rec, err := openRecorder(runCtx, cfg, log.Component("recorder"))
	if err != nil {
		return scheduler.Result{}, err
	}

	printer := console.New(deps.Stdout, deps.Colorize)
	sess := session.New(deps.Transport, session.Options{
		Logger: log.Component("session"),
		Stop:   stop,
		OnMessage: func(m session.Message) {
			printer.Received(m.Topic, m.QoS, m.Payload)
		},
	})

	if err := sess.Connect(runCtx); err != nil {
		if stop.Stopped() {
			rec.finish(scheduler.Result{Stopped: true}, journal.StatusStopped)
			log.Info("stopped while connecting")
			return scheduler.Result{Stopped: true}, nil
		}
		rec.finish(scheduler.Result{}, journal.StatusFailed)
		return scheduler.Result{}, fmt.Errorf("connecting to broker: %w", err)
	}
	defer func() {
		if err := sess.Disconnect(); err != nil {
			log.Error("error disconnecting", "error", err)
		}
		sess.Wait()
		if deps.OnFinish != nil {
			deps.OnFinish(sess.State())
		}
	}()

	if topic := cfg.Subscribe.Topic; topic != "" {
		outcome, err := sess.Subscribe(runCtx, topic, byte(cfg.Subscribe.QoS), cfg.HandshakeTimeout())
		if outcome.GrantedQoS != nil {
			printer.Granted(outcome.GrantedQoS)
		}
		if err != nil {
			if errors.Is(err, session.ErrInterrupted) {
				rec.finish(scheduler.Result{Stopped: true}, journal.StatusStopped)
				log.Info("stopped while subscribing")
				return scheduler.Result{Stopped: true}, nil
			}
			rec.finish(scheduler.Result{}, journal.StatusFailed)
			return scheduler.Result{}, fmt.Errorf("subscribing to %q: %w", topic, err)
		}
	}

	policy := retry.New(sess, retry.Options{
		Resubscribe: cfg.Retry.Resubscribe,
		Logger:      log.Component("retry"),
	})

	publish := func(ctx context.Context, tick scheduler.Tick) error {
		body, err := src.Next(tick.Seq)
		if errors.Is(err, payload.ErrDrained) {
			return fmt.Errorf("%w: %w", scheduler.ErrSourceDrained, err)
		}
		if err != nil {
			// A source that cannot be read will not recover on the next tick.
			return fmt.Errorf("%w: reading payload: %w", scheduler.ErrAbort, err)
		}

		printer.Publishing(body)

		msg := session.Message{
			Topic:    cfg.Publish.Topic,
			Payload:  body,
			QoS:      byte(cfg.Publish.QoS),
			Retained: cfg.Publish.Retained,
		}
		started := time.Now()
		outcome, err := policy.Publish(ctx, msg)
		rec.record(delivery{
			tick:     tick,
			topic:    msg.Topic,
			size:     len(body),
			outcome:  outcome.String(),
			err:      err,
			started:  started,
			finished: time.Now(),
		})
		return err
	}

	log.Info("publishing",
		"topic", cfg.Publish.Topic,
		"period", cfg.Period(),
		"limit", cfg.MessageLimit(),
	)

	res, err := scheduler.Run(runCtx, sched, publish, stop,
		scheduler.WithLogger(log.Component("scheduler")),
		scheduler.WithOnError(func(tick scheduler.Tick, err error) {
			log.Warn("publish failed", "seq", tick.Seq, "error", err)
		}),
	)
	rec.finish(res, runStatus(res, err))

	log.Info("publish loop finished",
		"sent", res.Sent,
		"failed", res.Failed,
		"stopped", res.Stopped,
		"drained", res.Drained,
		"elapsed", res.Elapsed,
	)
	if err != nil {
		return res, fmt.Errorf("publish loop: %w", err)
	}
	return res, nil
}

// ExitCode maps a Run error to the process exit status: 0 for a clean run,
// 2 for configuration errors, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, config.ErrInvalid),
		errors.Is(err, scheduler.ErrInvalidPeriod),
		errors.Is(err, ErrConfig):
		return 2
	default:
		return 1
	}
}
