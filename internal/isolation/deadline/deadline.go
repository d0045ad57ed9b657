// Package deadline tracks elapsed time against an optional execution budget.
package deadline

import (
	"fmt"
	"time"

	"isolator/internal/isolation/clock"
)

// Budget is the optional allowed time for one isolated call.
type Budget struct {
	allowed time.Duration
	bounded bool
}

// Within returns a bounded budget. Negative durations clamp to zero.
func Within(d time.Duration) Budget {
	if d < 0 {
		d = 0
	}
	return Budget{allowed: d, bounded: true}
}

// Unlimited returns the absent budget.
func Unlimited() Budget {
	return Budget{}
}

// Allowed returns the allowed time, or false when unlimited.
func (b Budget) Allowed() (time.Duration, bool) {
	return b.allowed, b.bounded
}

func (b Budget) String() string {
	if !b.bounded {
		return "unlimited"
	}
	return b.allowed.String()
}

// Status is a snapshot of a deadline taken at one instant, so a decision
// can be made without re-reading the clock.
type Status struct {
	timeLeft time.Duration
	bounded  bool
}

// TimeLeft returns the remaining time at snapshot, or false when unbounded.
func (s Status) TimeLeft() (time.Duration, bool) {
	return s.timeLeft, s.bounded
}

// OK is true when the time left is absent or positive.
func (s Status) OK() bool {
	return !s.bounded || s.timeLeft > 0
}

// PollTimeout converts the snapshot into a readiness-wait timeout.
// A negative result means wait without a bound.
func (s Status) PollTimeout() time.Duration {
	if !s.bounded {
		return -1
	}
	if s.timeLeft < 0 {
		return 0
	}
	return s.timeLeft
}

func (s Status) String() string {
	if !s.bounded {
		return "unbounded"
	}
	return fmt.Sprintf("%s left", s.timeLeft)
}

// Deadline answers how much time remains and whether it has expired.
type Deadline interface {
	TimeLeft() (time.Duration, bool)
	Expired() bool
	Status() Status
	Allowed() (time.Duration, bool)
}

// New starts a deadline now. An unlimited budget yields the unbounded
// implementation.
func New(c clock.Clock, budget Budget) Deadline {
	allowed, ok := budget.Allowed()
	if !ok {
		return unbounded{}
	}
	return &fixed{clock: c, start: c.Now(), allowed: allowed}
}

type fixed struct {
	clock   clock.Clock
	start   time.Time
	allowed time.Duration
}

func (d *fixed) TimeLeft() (time.Duration, bool) {
	return d.allowed - d.clock.Now().Sub(d.start), true
}

func (d *fixed) Expired() bool {
	left, _ := d.TimeLeft()
	return left <= 0
}

func (d *fixed) Status() Status {
	left, _ := d.TimeLeft()
	return Status{timeLeft: left, bounded: true}
}

func (d *fixed) Allowed() (time.Duration, bool) {
	return d.allowed, true
}

type unbounded struct{}

func (unbounded) TimeLeft() (time.Duration, bool) { return 0, false }
func (unbounded) Expired() bool                   { return false }
func (unbounded) Status() Status                  { return Status{} }
func (unbounded) Allowed() (time.Duration, bool)  { return 0, false }
