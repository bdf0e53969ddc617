package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
)

// Signal is a one-shot stop flag with a broadcast channel.
//
// The flag moves from unset to set exactly once and is never reset.
// Observers can poll Stopped or block on Done; both views agree once
// RequestStop has returned.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - RequestStop takes no locks and does not allocate.
type Signal struct {
	stopped atomic.Bool
	done    chan struct{}
}

// process is the process-wide signal. It exists before main runs so every
// goroutine that observes it starts after it is initialised.
var process = New()

// Process returns the process-wide stop signal.
func Process() *Signal {
	return process
}

// New creates an unset Signal. Use Process in production code; New is for
// components that need an isolated signal (tests, embedded runs).
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// RequestStop sets the flag and wakes every waiter.
// Only the first call has an effect; later calls return immediately.
func (s *Signal) RequestStop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.done)
	}
}

// Stopped reports whether a stop has been requested. It never blocks.
func (s *Signal) Stopped() bool {
	return s.stopped.Load()
}

// Done returns a channel that is closed once a stop has been requested.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// NotifyOnSignals relays the given OS signals to RequestStop.
//
// The Go runtime delivers signals on a channel, so the relay goroutine runs
// in ordinary context and RequestStop is the only thing it does. The returned
// release function stops the relay and restores default signal handling;
// a second signal after release terminates the process as usual.
func (s *Signal) NotifyOnSignals(sigs ...os.Signal) (release func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	quit := make(chan struct{})
	go func() {
		select {
		case <-ch:
			s.RequestStop()
		case <-quit:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(quit)
	}
}

// Context returns a copy of parent that is cancelled when a stop is
// requested. Blocking library calls take this context so they end promptly
// on shutdown.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
