// Package autostop ends a Just Lift set once the user has put the handles down and left
// them resting at the bottom of the band for a grace period.
package autostop

import (
	"log"
	"math"
	"time"

	"github.com/lowaak/vitruvian-monitor/internal/calibration"
	"github.com/lowaak/vitruvian-monitor/internal/timing"
)

// Settings tunes the evaluator. Zero fields fall back to DefaultSettings.
type Settings struct {
	Grace           time.Duration
	RestVelocity    float64 // |velocity| below this counts as resting
	MinRange        int     // bands this narrow are ignored
	ReleaseDistance int     // positions this close to the bottom count as released
}

func DefaultSettings() Settings {
	return Settings{
		Grace:           3 * time.Second,
		RestVelocity:    2.5,
		MinRange:        calibration.DefaultMeaningfulRange,
		ReleaseDistance: 10,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Grace <= 0 {
		s.Grace = d.Grace
	}
	if s.RestVelocity <= 0 {
		s.RestVelocity = d.RestVelocity
	}
	if s.MinRange <= 0 {
		s.MinRange = d.MinRange
	}
	if s.ReleaseDistance <= 0 {
		s.ReleaseDistance = d.ReleaseDistance
	}
	return s
}

// Sample is one filtered position reading. Velocities are zero when the source has none.
type Sample struct {
	PosA int
	PosB int
	VelA float64
	VelB float64
}

// State drives the countdown display
type State struct {
	Active           bool
	SecondsRemaining int
	Progress         float64 // 0..1 through the grace period
}

// RangeSource is the calibration the evaluator reads. *repcounter.RepCounter satisfies it.
type RangeSource interface {
	HasMeaningfulRange(threshold int) bool
	IsInDangerZone(posA, posB, threshold int) bool
	Ranges() calibration.RepRanges
}

// Evaluator tracks how long the handles have rested in the danger zone.
// Not safe for concurrent use.
type Evaluator struct {
	logger   *log.Logger
	clock    timing.Clock
	settings Settings

	deadline  timing.Deadline
	state     State
	triggered bool
}

func NewEvaluator(logger *log.Logger, clock timing.Clock, settings Settings) *Evaluator {
	if logger == nil {
		panic("AutoStop: logger cannot be nil")
	}
	if clock == nil {
		clock = timing.SystemClock{}
	}
	return &Evaluator{
		logger:   logger,
		clock:    clock,
		settings: settings.withDefaults(),
	}
}

func (e *Evaluator) Settings() Settings {
	return e.settings
}

// Evaluate updates the dwell timer from one sample. triggered is true on exactly one call
// per latch, the one where the grace period runs out.
func (e *Evaluator) Evaluate(sample Sample, ranges RangeSource) (State, bool) {
	if !ranges.HasMeaningfulRange(e.settings.MinRange) {
		e.ResetTimer()
		return e.state, false
	}

	r := ranges.Ranges()
	resting := e.cableResting(sample.PosA, sample.VelA, r.MinPosA, r.RangeA) ||
		e.cableResting(sample.PosB, sample.VelB, r.MinPosB, r.RangeB)

	if !resting || !ranges.IsInDangerZone(sample.PosA, sample.PosB, e.settings.MinRange) {
		e.ResetTimer()
		return e.state, false
	}

	now := e.clock.Now()
	e.deadline.Start(now)
	elapsed := e.deadline.Elapsed(now)

	grace := e.settings.Grace.Seconds()
	progress := min(max(elapsed.Seconds()/grace, 0), 1)
	remaining := int(math.Ceil(max(grace-elapsed.Seconds(), 0)))
	e.state = State{Active: true, SecondsRemaining: remaining, Progress: progress}

	if elapsed >= e.settings.Grace && !e.triggered {
		e.triggered = true
		e.logger.Printf("AutoStop: handles rested %.1fs at the bottom, stopping", elapsed.Seconds())
		return e.state, true
	}
	return e.state, false
}

// cableResting reports whether one cable sits in its danger zone and is either near the
// bottom or barely moving
func (e *Evaluator) cableResting(pos int, vel float64, minPos calibration.Bound, width int) bool {
	if !minPos.Valid || width <= e.settings.MinRange {
		return false
	}
	threshold := minPos.Value + int(float64(width)*calibration.DangerZoneFraction)
	if pos > threshold {
		return false
	}
	return pos-minPos.Value < e.settings.ReleaseDistance || math.Abs(vel) < e.settings.RestVelocity
}

// ResetTimer stops the dwell timer. A fired trigger stays latched and keeps its display.
func (e *Evaluator) ResetTimer() {
	e.deadline.Reset()
	if !e.triggered {
		e.state = State{}
	}
}

// Reset clears the timer, the display and the latch
func (e *Evaluator) Reset() {
	e.deadline.Reset()
	e.state = State{}
	e.triggered = false
}

func (e *Evaluator) State() State {
	return e.state
}

func (e *Evaluator) Triggered() bool {
	return e.triggered
}
