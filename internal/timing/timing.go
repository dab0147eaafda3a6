// Package timing holds the injected clock and the restartable deadline used by the
// auto-stop dwell timer and the auto-start countdown.
package timing

import (
	"sync"
	"time"
)

// Clock supplies monotonic time to the dwell timer
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now, whose monotonic reading is used for elapsed computations
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Deadline is a restartable dwell timer. Start is idempotent while running;
// Reset stops it so the next Start begins a fresh interval.
type Deadline struct {
	started time.Time
	running bool
}

// Start begins the interval at now unless it is already running
func (d *Deadline) Start(now time.Time) {
	if d.running {
		return
	}
	d.started = now
	d.running = true
}

// Reset stops the timer
func (d *Deadline) Reset() {
	d.running = false
	d.started = time.Time{}
}

// Running reports whether an interval is in progress
func (d *Deadline) Running() bool {
	return d.running
}

// Elapsed returns time since Start, or zero when not running
func (d *Deadline) Elapsed(now time.Time) time.Duration {
	if !d.running {
		return 0
	}
	elapsed := now.Sub(d.started)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ManualClock is a Clock advanced by hand. Used by replay and tests.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
