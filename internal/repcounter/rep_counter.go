// Package repcounter turns the machine's wrapping rep counters into rep lifecycle events.
//
// The machine's ROM and set tallies are the ground truth for confirmed reps. The
// top/complete counters only drive visual timing: a working rep shows as pending at the
// top of the movement and clears at the bottom, before the set tally confirms it.
package repcounter

import (
	"errors"
	"fmt"
	"log"

	"github.com/lowaak/vitruvian-monitor/internal/calibration"
)

// ErrInvalidConfig is returned by Configure for targets the counter cannot work with
var ErrInvalidConfig = errors.New("invalid rep counter config")

// DefaultWarmupTarget is the warmup rep count used when none is configured
const DefaultWarmupTarget = 3

// Progress interpolation falls back to this band when cable A is uncalibrated
const (
	fallbackMinPos = 0
	fallbackMaxPos = 1000
)

// Config is set once per workout
type Config struct {
	WarmupTarget  int
	WorkingTarget int // 0 means no target
	JustLift      bool
	StopAtTop     bool
	AMRAP         bool
}

// DefaultConfig returns the configuration used before Configure is called
func DefaultConfig() Config {
	return Config{WarmupTarget: DefaultWarmupTarget}
}

// Input is one rep notification paired with the latest filtered positions
type Input struct {
	RepsRomCount uint8
	RepsSetCount uint8
	Up           uint8 // top counter
	Down         uint8 // complete counter
	PosA         int
	PosB         int
}

// RepCounter is the rep state machine for one workout.
// Not safe for concurrent use; callers serialise access.
type RepCounter struct {
	logger *log.Logger
	config Config

	warmupReps  int
	workingReps int
	shouldStop  bool

	hasPendingRep      bool
	pendingRepProgress float64

	lastTopCounter      uint8
	lastCompleteCounter uint8
	countersSeeded      bool

	calibrator *calibration.Calibrator
}

func NewRepCounter(logger *log.Logger) *RepCounter {
	if logger == nil {
		panic("RepCounter: logger cannot be nil")
	}
	return &RepCounter{
		logger:     logger,
		config:     DefaultConfig(),
		calibrator: calibration.NewCalibrator(),
	}
}

// Validate rejects negative targets
func (c Config) Validate() error {
	if c.WarmupTarget < 0 {
		return fmt.Errorf("%w: warmup target %d", ErrInvalidConfig, c.WarmupTarget)
	}
	if c.WorkingTarget < 0 {
		return fmt.Errorf("%w: working target %d", ErrInvalidConfig, c.WorkingTarget)
	}
	return nil
}

// Configure sets the workout targets and mode flags. An invalid config is rejected
// and leaves the previous configuration in place.
func (r *RepCounter) Configure(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	r.config = config
	r.logger.Printf("RepCounter: configured warmup=%d working=%d justLift=%v stopAtTop=%v amrap=%v",
		config.WarmupTarget, config.WorkingTarget, config.JustLift, config.StopAtTop, config.AMRAP)
	return nil
}

// Config returns the active configuration
func (r *RepCounter) Config() Config {
	return r.config
}

// Reset wipes tallies, pending state, counters and calibration
func (r *RepCounter) Reset() {
	r.resetCounts()
	r.calibrator.Reset()
}

// ResetCountsOnly wipes tallies and pending state but keeps calibration, so ranges built
// while waiting for handles survive into the set
func (r *RepCounter) ResetCountsOnly() {
	r.resetCounts()
}

func (r *RepCounter) resetCounts() {
	r.warmupReps = 0
	r.workingReps = 0
	r.shouldStop = false
	r.hasPendingRep = false
	r.pendingRepProgress = 0
	r.lastTopCounter = 0
	r.lastCompleteCounter = 0
	r.countersSeeded = false
}

// SetInitialBaseline anchors uncalibrated minimums to the starting rope position
func (r *RepCounter) SetInitialBaseline(posA, posB int) {
	r.calibrator.SetInitialBaseline(posA, posB)
}

// UpdatePositionRangesContinuously widens the bands from live positions. Used in Just Lift,
// where no rep notifications arrive to calibrate from.
func (r *RepCounter) UpdatePositionRangesContinuously(posA, posB int) {
	r.calibrator.UpdateContinuously(posA, posB)
}

// Process applies one rep notification and returns the events it produced, in order.
// The first call after a reset only seeds the counters.
func (r *RepCounter) Process(in Input) []RepEvent {
	var events []RepEvent

	if r.countersSeeded {
		if Delta8(r.lastTopCounter, in.Up) > 0 {
			r.calibrator.RecordTop(in.PosA, in.PosB, r.windowSize())

			if r.isWarmupComplete() && !r.hasPendingRep {
				r.hasPendingRep = true
				r.pendingRepProgress = 0
				events = append(events, r.event(WorkingPending))
			}
		}

		if Delta8(r.lastCompleteCounter, in.Down) > 0 {
			r.calibrator.RecordBottom(in.PosA, in.PosB, r.windowSize())

			if r.hasPendingRep {
				r.hasPendingRep = false
				r.pendingRepProgress = 1
			}
		}
	}

	r.UpdatePendingProgress(in.PosA)

	r.lastTopCounter = in.Up
	r.lastCompleteCounter = in.Down
	r.countersSeeded = true

	romCount := int(in.RepsRomCount)
	if romCount > r.warmupReps && r.warmupReps < r.config.WarmupTarget {
		r.warmupReps = min(romCount, r.config.WarmupTarget)
		events = append(events, r.event(WarmupCompleted))

		if r.isWarmupComplete() {
			r.logger.Printf("RepCounter: warmup complete (%d reps)", r.warmupReps)
			events = append(events, r.event(WarmupComplete))
		}
	}

	setCount := int(in.RepsSetCount)
	if r.isWarmupComplete() && setCount > r.workingReps {
		r.workingReps = setCount
		events = append(events, r.event(WorkingCompleted))

		if !r.config.JustLift && !r.config.AMRAP && r.config.WorkingTarget > 0 && r.workingReps >= r.config.WorkingTarget {
			if !r.shouldStop {
				r.logger.Printf("RepCounter: working target %d reached", r.config.WorkingTarget)
			}
			r.shouldStop = true
			events = append(events, r.event(WorkoutComplete))
		}
	}

	return events
}

// UpdatePendingProgress recomputes the eccentric fill from cable A's position while a rep
// is pending. Progress holds its last value when the band is 50 units or narrower.
func (r *RepCounter) UpdatePendingProgress(posA int) {
	if !r.hasPendingRep {
		return
	}
	minA, maxA := fallbackMinPos, fallbackMaxPos
	if b := r.calibrator.MinA(); b.Valid {
		minA = b.Value
	}
	if b := r.calibrator.MaxA(); b.Valid {
		maxA = b.Value
	}
	width := maxA - minA
	if width <= calibration.DefaultMeaningfulRange {
		return
	}
	pos := min(max(posA, minA), maxA)
	fractionFromBottom := float64(pos-minA) / float64(width)
	r.pendingRepProgress = min(max(1-fractionFromBottom, 0), 1)
}

func (r *RepCounter) isWarmupComplete() bool {
	return r.warmupReps >= r.config.WarmupTarget
}

func (r *RepCounter) windowSize() int {
	if r.warmupReps+r.workingReps < r.config.WarmupTarget {
		return calibration.WarmupWindowSize
	}
	return calibration.WorkingWindowSize
}

func (r *RepCounter) event(t RepEventType) RepEvent {
	return RepEvent{Type: t, WarmupCount: r.warmupReps, WorkingCount: r.workingReps}
}

// RepCount returns a snapshot of the tallies
func (r *RepCounter) RepCount() RepCount {
	return RepCount{
		WarmupReps:         r.warmupReps,
		WorkingReps:        r.workingReps,
		TotalReps:          r.workingReps,
		IsWarmupComplete:   r.isWarmupComplete(),
		HasPendingRep:      r.hasPendingRep,
		PendingRepProgress: r.pendingRepProgress,
	}
}

// ShouldStop reports whether the working target was reached. It stays set until a reset.
func (r *RepCounter) ShouldStop() bool {
	return r.shouldStop
}

// Ranges returns a snapshot of the calibrated bands
func (r *RepCounter) Ranges() calibration.RepRanges {
	return r.calibrator.Ranges()
}

// CalibratedTop returns cable A's calibrated top position
func (r *RepCounter) CalibratedTop() (int, bool) {
	b := r.calibrator.MaxA()
	return b.Value, b.Valid
}

func (r *RepCounter) HasMeaningfulRange(threshold int) bool {
	return r.calibrator.HasMeaningfulRange(threshold)
}

func (r *RepCounter) IsInDangerZone(posA, posB, threshold int) bool {
	return r.calibrator.IsInDangerZone(posA, posB, threshold)
}
