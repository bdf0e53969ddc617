package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned by NewSchedule for a non-positive period.
var ErrInvalidPeriod = errors.New("scheduler: period must be positive")

// Schedule is the timing state of one publish loop.
//
// Deadlines are computed from a fixed start instant and a multiple of
// the period, never by chaining relative sleeps, so publish latency and
// timer jitter do not accumulate.
type Schedule struct {
	// Period between sends.
	Period time.Duration

	// Limit is the number of sends after which the loop ends.
	// Zero or negative means unbounded.
	Limit int

	// Immediate moves every deadline one period earlier, so the first send
	// happens at start.
	Immediate bool

	start time.Time
	sent  int
}

// NewSchedule validates period and returns an unstarted schedule.
func NewSchedule(period time.Duration, limit int) (*Schedule, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidPeriod, period)
	}
	return &Schedule{Period: period, Limit: limit}, nil
}

// Start records the origin. Only the first call has an effect.
func (s *Schedule) Start(now time.Time) {
	if s.start.IsZero() {
		s.start = now
	}
}

// Started returns the recorded origin, zero before Start.
func (s *Schedule) Started() time.Time {
	return s.start
}

// Deadline returns the target instant of send n, counting from 1.
func (s *Schedule) Deadline(n int) time.Time {
	k := n
	if s.Immediate {
		k = n - 1
	}
	return s.start.Add(time.Duration(k) * s.Period)
}

// Next returns the sequence number and deadline of the next send.
func (s *Schedule) Next() (int, time.Time) {
	n := s.sent + 1
	return n, s.Deadline(n)
}

// Sent returns the number of sends recorded so far.
func (s *Schedule) Sent() int {
	return s.sent
}

// Exhausted reports whether the limit has been reached.
func (s *Schedule) Exhausted() bool {
	return s.Limit > 0 && s.sent >= s.Limit
}

// record marks one send as done.
func (s *Schedule) record() {
	s.sent++
}
