package autostop

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/vitruvian-monitor/internal/calibration"
	"github.com/lowaak/vitruvian-monitor/internal/timing"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *timing.ManualClock) {
	t.Helper()
	clock := timing.NewManualClock(time.Unix(1_700_000_000, 0))
	return NewEvaluator(log.New(io.Discard, "", 0), clock, Settings{}), clock
}

// calibrated returns a band of 100..1100 on both cables; the danger zone tops out at 150
func calibrated() *calibration.Calibrator {
	c := calibration.NewCalibrator()
	c.SetInitialBaseline(100, 100)
	c.UpdateContinuously(1100, 1100)
	return c
}

func TestNewEvaluator_NilLoggerPanics(t *testing.T) {
	assert.PanicsWithValue(t, "AutoStop: logger cannot be nil", func() {
		NewEvaluator(nil, nil, Settings{})
	})
}

func TestSettings_Defaults(t *testing.T) {
	e, _ := newTestEvaluator(t)
	assert.Equal(t, DefaultSettings(), e.Settings())

	custom := NewEvaluator(log.New(io.Discard, "", 0), nil, Settings{Grace: time.Second, ReleaseDistance: 4})
	assert.Equal(t, time.Second, custom.Settings().Grace)
	assert.Equal(t, 4, custom.Settings().ReleaseDistance)
	assert.Equal(t, 2.5, custom.Settings().RestVelocity)
}

func TestEvaluate_NoMeaningfulRange(t *testing.T) {
	e, clock := newTestEvaluator(t)
	c := calibration.NewCalibrator()
	c.SetInitialBaseline(100, 100)
	c.UpdateContinuously(140, 140)

	for i := 0; i < 5; i++ {
		state, triggered := e.Evaluate(Sample{PosA: 100, PosB: 100}, c)
		assert.False(t, triggered)
		assert.Equal(t, State{}, state)
		clock.Advance(time.Second)
	}
}

func TestEvaluate_CountdownAndSingleTrigger(t *testing.T) {
	e, clock := newTestEvaluator(t)
	ranges := calibrated()
	resting := Sample{PosA: 120, PosB: 900}

	state, triggered := e.Evaluate(resting, ranges)
	require.False(t, triggered)
	assert.True(t, state.Active)
	assert.Equal(t, 3, state.SecondsRemaining)
	assert.Equal(t, 0.0, state.Progress)

	clock.Advance(1500 * time.Millisecond)
	state, triggered = e.Evaluate(resting, ranges)
	require.False(t, triggered)
	assert.Equal(t, 2, state.SecondsRemaining)
	assert.InDelta(t, 0.5, state.Progress, 1e-9)

	clock.Advance(1500 * time.Millisecond)
	state, triggered = e.Evaluate(resting, ranges)
	assert.True(t, triggered)
	assert.Equal(t, 0, state.SecondsRemaining)
	assert.Equal(t, 1.0, state.Progress)
	assert.True(t, e.Triggered())

	clock.Advance(time.Second)
	state, triggered = e.Evaluate(resting, ranges)
	assert.False(t, triggered, "trigger fires once per latch")
	assert.Equal(t, 1.0, state.Progress)
}

func TestEvaluate_MovementResetsTimer(t *testing.T) {
	e, clock := newTestEvaluator(t)
	ranges := calibrated()

	e.Evaluate(Sample{PosA: 120, PosB: 900}, ranges)
	clock.Advance(2 * time.Second)

	state, triggered := e.Evaluate(Sample{PosA: 600, PosB: 900}, ranges)
	assert.False(t, triggered)
	assert.Equal(t, State{}, state)

	state, _ = e.Evaluate(Sample{PosA: 120, PosB: 900}, ranges)
	assert.Equal(t, 3, state.SecondsRemaining, "timer restarts from the full grace period")
}

func TestEvaluate_Release(t *testing.T) {
	tests := []struct {
		name    string
		sample  Sample
		resting bool
	}{
		{name: "near bottom while moving", sample: Sample{PosA: 105, PosB: 900, VelA: 40}, resting: true},
		{name: "in zone and still", sample: Sample{PosA: 140, PosB: 900, VelA: 1}, resting: true},
		{name: "in zone and moving", sample: Sample{PosA: 140, PosB: 900, VelA: -30}, resting: false},
		{name: "above zone and still", sample: Sample{PosA: 151, PosB: 900}, resting: false},
		{name: "cable B resting", sample: Sample{PosA: 900, PosB: 110, VelA: 50}, resting: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEvaluator(t)
			state, _ := e.Evaluate(tt.sample, calibrated())
			assert.Equal(t, tt.resting, state.Active)
		})
	}
}

func TestResetTimer_KeepsLatch(t *testing.T) {
	e, clock := newTestEvaluator(t)
	ranges := calibrated()
	resting := Sample{PosA: 120, PosB: 900}

	e.Evaluate(resting, ranges)
	clock.Advance(3 * time.Second)
	_, triggered := e.Evaluate(resting, ranges)
	require.True(t, triggered)

	e.ResetTimer()
	assert.True(t, e.Triggered())
	assert.True(t, e.State().Active, "latched display survives a timer reset")

	e.Reset()
	assert.False(t, e.Triggered())
	assert.Equal(t, State{}, e.State())

	e.Evaluate(resting, ranges)
	clock.Advance(3 * time.Second)
	_, triggered = e.Evaluate(resting, ranges)
	assert.True(t, triggered, "a full reset re-arms the trigger")
}
