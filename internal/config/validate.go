package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/lowaak/vitruvian-monitor/internal/autostop"
	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
)

// ModeEcho selects an echo set instead of a program mode
const ModeEcho = "echo"

// Validate reports every out-of-range value, joined into one error
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if !slices.Contains(linkKinds, c.Link.Kind) {
		bad("link.kind %q is not one of %v", c.Link.Kind, linkKinds)
	}
	if _, ok := protocol.ParseFraming(c.Link.Framing); !ok {
		bad("link.framing %q", c.Link.Framing)
	}
	if c.Link.Kind == LinkWebSocket && c.Link.URL == "" {
		bad("link.url is required for the ws link")
	}
	if c.Link.Kind == LinkReplay && c.Link.Capture == "" {
		bad("link.capture is required for the replay link")
	}
	if c.Link.PollInterval <= 0 {
		bad("link.poll_interval must be positive")
	}

	w := c.Workout
	if w.Mode == ModeEcho {
		if _, ok := protocol.ParseEchoLevel(w.EchoLevel); !ok {
			bad("workout.echo_level %q", w.EchoLevel)
		}
		if !slices.Contains(protocol.EchoEccentricLoads, w.EccentricLoad) {
			bad("workout.eccentric_load %d is not one of %v", w.EccentricLoad, protocol.EchoEccentricLoads)
		}
	} else if _, ok := protocol.ParseProgramMode(w.Mode); !ok {
		bad("workout.mode %q", w.Mode)
	}
	if w.WeightKg < 0 || w.WeightKg > protocol.MaxWeightPerCableKg {
		bad("workout.weight_kg %.2f outside 0..%.2f", w.WeightKg, protocol.MaxWeightPerCableKg)
	}
	if w.WarmupReps < 0 || w.WorkingReps < 0 {
		bad("workout rep targets must not be negative")
	}
	if w.CountdownSeconds < 0 || c.Handles.CountdownSeconds < 0 {
		bad("countdown seconds must not be negative")
	}

	if c.AutoStop.Grace <= 0 {
		bad("autostop.grace must be positive")
	}
	if c.AutoStop.RestVelocity <= 0 || c.AutoStop.MinRange <= 0 || c.AutoStop.ReleaseDistance <= 0 {
		bad("autostop thresholds must be positive")
	}
	if c.Handles.Threshold <= 0 {
		bad("handles.threshold must be positive")
	}
	if c.Filter.SpikeThreshold <= 0 {
		bad("filter.spike_threshold must be positive")
	}
	if c.Sim.Interval <= 0 || c.Sim.RepDuration <= 0 {
		bad("sim timings must be positive")
	}
	if c.Log.MaxSizeMB <= 0 {
		bad("log.max_size_mb must be positive")
	}

	return errors.Join(errs...)
}

// FramingValue returns the parsed rep notification framing
func (l LinkConfig) FramingValue() protocol.Framing {
	f, _ := protocol.ParseFraming(l.Framing)
	return f
}

// Command builds the start command for the configured workout
func (w WorkoutConfig) Command() (protocol.Command, error) {
	if w.Mode == ModeEcho {
		level, ok := protocol.ParseEchoLevel(w.EchoLevel)
		if !ok {
			return nil, fmt.Errorf("%w: echo level %q", ErrInvalidConfig, w.EchoLevel)
		}
		return protocol.EchoCommand{Level: level, EccentricLoadPercent: w.EccentricLoad}, nil
	}
	mode, ok := protocol.ParseProgramMode(w.Mode)
	if !ok {
		return nil, fmt.Errorf("%w: mode %q", ErrInvalidConfig, w.Mode)
	}
	return protocol.ProgramCommand{Mode: mode, WeightPerCableKg: w.WeightKg}, nil
}

func (w WorkoutConfig) RepConfig() repcounter.Config {
	return repcounter.Config{
		WarmupTarget:  w.WarmupReps,
		WorkingTarget: w.WorkingReps,
		JustLift:      w.JustLift,
		StopAtTop:     w.StopAtTop,
		AMRAP:         w.AMRAP,
	}
}

func (a AutoStopConfig) Settings() autostop.Settings {
	return autostop.Settings{
		Grace:           a.Grace,
		RestVelocity:    a.RestVelocity,
		MinRange:        a.MinRange,
		ReleaseDistance: a.ReleaseDistance,
	}
}

// LinkConfig builds the simulator script. Framing comes from the link section.
func (s SimConfig) LinkConfig(framing protocol.Framing) link.SimConfig {
	sim := link.DefaultSimConfig()
	sim.Framing = framing
	sim.Interval = s.Interval
	sim.RepDuration = s.RepDuration
	sim.WorkingReps = s.WorkingReps
	sim.AutoLift = s.AutoLift
	sim.SpikeEvery = s.SpikeEvery
	return sim
}
