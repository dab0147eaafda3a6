package session

import (
	"time"

	"github.com/lowaak/vitruvian-monitor/internal/autostop"
	"github.com/lowaak/vitruvian-monitor/internal/calibration"
	"github.com/lowaak/vitruvian-monitor/internal/filter"
	"github.com/lowaak/vitruvian-monitor/internal/handles"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
)

// WorkoutState is the set lifecycle
type WorkoutState int

const (
	StateIdle WorkoutState = iota
	StateCountdown
	StateActive
	StateSetSummary
)

type WorkoutStateInfo struct {
	State WorkoutState
	Name  string
}

var AllWorkoutStates = []WorkoutStateInfo{
	{State: StateIdle, Name: "Idle"},
	{State: StateCountdown, Name: "Countdown"},
	{State: StateActive, Name: "Active"},
	{State: StateSetSummary, Name: "Set Summary"},
}

func (s WorkoutState) String() string {
	for _, info := range AllWorkoutStates {
		if info.State == s {
			return info.Name
		}
	}
	return "Unknown"
}

// StopReason records why a set ended
type StopReason int

const (
	StopManual StopReason = iota
	StopTargetReached
	StopAutoStop
	StopLinkLost
)

func (r StopReason) String() string {
	switch r {
	case StopManual:
		return "stopped"
	case StopTargetReached:
		return "target reached"
	case StopAutoStop:
		return "handles released"
	case StopLinkLost:
		return "connection lost"
	default:
		return "unknown"
	}
}

// SetSummary describes a finished set. Loads are per cable.
type SetSummary struct {
	SessionID     string
	WarmupReps    int
	WorkingReps   int
	Duration      time.Duration
	PeakLoadKg    float64
	AverageLoadKg float64
	Reason        StopReason
}

// Status is the published workout state. Countdown counts down to Active;
// AutoStartIn counts down to an automatic start and is 0 when none is armed.
type Status struct {
	State       WorkoutState
	Countdown   int
	AutoStartIn int
	SessionID   string
	Summary     *SetSummary
}

// Metric is one validated position and load sample. Velocities are zero for monitor frames.
type Metric struct {
	Ticks     uint32
	PositionA int
	PositionB int
	LoadA     float64
	LoadB     float64
	VelocityA float64
	VelocityB float64
	Status    protocol.SampleStatus
	HasStatus bool
	Rejected  filter.Rejection
	At        time.Time
}

// Params starts a workout
type Params struct {
	Command       protocol.Command
	Rep           repcounter.Config
	SkipCountdown bool
}

// Snapshot is a consistent view of the session taken on the pipeline goroutine
type Snapshot struct {
	Status   Status
	RepCount repcounter.RepCount
	Ranges   calibration.RepRanges
	AutoStop autostop.State
	Handles  handles.HandleState
	Metric   Metric
	Stats    Stats
}
