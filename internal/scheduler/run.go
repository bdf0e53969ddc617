package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/mqtt-client-app/internal/shutdown"
)

var (
	// ErrSourceDrained is returned by a PublishFunc when its payload source
	// has nothing left. The loop ends cleanly and the tick is not counted.
	ErrSourceDrained = errors.New("scheduler: payload source drained")

	// ErrAbort is returned by a PublishFunc to end the loop with an error.
	ErrAbort = errors.New("scheduler: run aborted")
)

// Tick identifies one scheduled send.
type Tick struct {
	Seq      int
	Deadline time.Time
}

// PublishFunc performs one send. Errors other than ErrSourceDrained and
// ErrAbort are reported and the loop continues with the next deadline.
type PublishFunc func(ctx context.Context, tick Tick) error

// Result summarises a finished loop.
type Result struct {
	Sent    int
	Failed  int
	Stopped bool
	Drained bool
	Elapsed time.Duration
}

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger used for per-tick diagnostics.
func WithLogger(l Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOnError sets a hook called for every recoverable publish error.
func WithOnError(fn func(Tick, error)) Option {
	return func(r *runner) { r.onError = fn }
}

type runner struct {
	logger  Logger
	onError func(Tick, error)
}

// Run drives the publish loop until stop is requested, ctx ends, the
// limit is reached, or fn reports ErrSourceDrained or ErrAbort.
//
// A stop observed while waiting for a deadline ends the loop without
// sending. A nil stop signal is allowed; ctx then is the only way out
// of an unbounded schedule. The returned error is non-nil only for
// ErrAbort.
func Run(ctx context.Context, s *Schedule, fn PublishFunc, stop *shutdown.Signal, opts ...Option) (Result, error) {
	r := runner{logger: noopLogger{}}
	for _, opt := range opts {
		opt(&r)
	}

	var stopCh <-chan struct{}
	if stop != nil {
		stopCh = stop.Done()
	}
	stopped := func() bool { return stop != nil && stop.Stopped() }

	s.Start(time.Now())
	var res Result
	finish := func() Result {
		res.Sent = s.Sent()
		res.Elapsed = time.Since(s.Started())
		return res
	}

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if stopped() || ctx.Err() != nil {
			res.Stopped = true
			return finish(), nil
		}
		if s.Exhausted() {
			return finish(), nil
		}

		seq, deadline := s.Next()

		// Wait for the deadline; the flag stays authoritative across wakes.
		for {
			if stopped() || ctx.Err() != nil {
				res.Stopped = true
				return finish(), nil
			}
			wait := time.Until(deadline)
			if wait <= 0 {
				break
			}
			timer.Reset(wait)
			select {
			case <-timer.C:
			case <-stopCh:
				timer.Stop()
			case <-ctx.Done():
				timer.Stop()
			}
		}

		tick := Tick{Seq: seq, Deadline: deadline}
		err := fn(ctx, tick)
		switch {
		case err == nil:
		case errors.Is(err, ErrSourceDrained):
			r.logger.Debug("payload source drained", "seq", seq)
			res.Drained = true
			return finish(), nil
		case errors.Is(err, ErrAbort):
			s.record()
			res.Failed++
			return finish(), err
		default:
			res.Failed++
			r.logger.Warn("publish failed", "seq", seq, "error", err)
			if r.onError != nil {
				r.onError(tick, err)
			}
		}
		s.record()
	}
}
