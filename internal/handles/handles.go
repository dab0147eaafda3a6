// Package handles detects when the user grabs the cables and runs the auto-start countdown.
package handles

import (
	"math"
	"time"

	"github.com/lowaak/vitruvian-monitor/internal/timing"
)

// DefaultThreshold is the cable position above which a handle counts as picked up
const DefaultThreshold = 500

// DefaultCountdownSeconds is the auto-start countdown length
const DefaultCountdownSeconds = 5

// HandleState reports which handles are being held
type HandleState struct {
	LeftDetected  bool
	RightDetected bool
}

// Any reports whether at least one handle is held
func (s HandleState) Any() bool {
	return s.LeftDetected || s.RightDetected
}

// Detector turns cable positions into handle presence
type Detector struct {
	threshold int
	state     HandleState
}

// NewDetector creates a detector; threshold <= 0 selects DefaultThreshold
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold}
}

// Update classifies one sample and reports whether the state differs from the previous one
func (d *Detector) Update(posA, posB int) (HandleState, bool) {
	next := HandleState{
		LeftDetected:  posA > d.threshold,
		RightDetected: posB > d.threshold,
	}
	changed := next != d.state
	d.state = next
	return next, changed
}

func (d *Detector) State() HandleState {
	return d.state
}

func (d *Detector) Reset() {
	d.state = HandleState{}
}

// Countdown is a whole-second countdown over a restartable deadline
type Countdown struct {
	length   time.Duration
	deadline timing.Deadline
}

// NewCountdown creates a countdown; seconds <= 0 selects DefaultCountdownSeconds
func NewCountdown(seconds int) *Countdown {
	if seconds <= 0 {
		seconds = DefaultCountdownSeconds
	}
	return &Countdown{length: time.Duration(seconds) * time.Second}
}

// Start arms the countdown at now. Calling it again while armed has no effect.
func (c *Countdown) Start(now time.Time) {
	c.deadline.Start(now)
}

func (c *Countdown) Cancel() {
	c.deadline.Reset()
}

func (c *Countdown) Running() bool {
	return c.deadline.Running()
}

// Remaining returns the seconds left, rounded up, and false when the countdown is not armed
func (c *Countdown) Remaining(now time.Time) (int, bool) {
	if !c.deadline.Running() {
		return 0, false
	}
	left := c.length - c.deadline.Elapsed(now)
	if left < 0 {
		left = 0
	}
	return int(math.Ceil(left.Seconds())), true
}

// Expired reports whether an armed countdown has run its full length
func (c *Countdown) Expired(now time.Time) bool {
	return c.deadline.Running() && c.deadline.Elapsed(now) >= c.length
}
