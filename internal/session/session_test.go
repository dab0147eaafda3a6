package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lowaak/vitruvian-monitor/internal/capture"
	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
	"github.com/lowaak/vitruvian-monitor/internal/timing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeLink struct {
	mu      sync.Mutex
	handler link.FrameHandler
	sent    [][]byte
	sendErr error

	done      chan struct{}
	closeOnce sync.Once
}

func newFakeLink() *fakeLink {
	return &fakeLink{done: make(chan struct{})}
}

func (f *fakeLink) Name() string { return "fake" }

func (f *fakeLink) Start(ctx context.Context, handler link.FrameHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = handler
	return nil
}

func (f *fakeLink) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeLink) Done() <-chan struct{} { return f.done }

func (f *fakeLink) Close() error {
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeLink) setSendErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// opcodes returns the first byte of every command written so far
func (f *fakeLink) opcodes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, 0, len(f.sent))
	for _, data := range f.sent {
		out = append(out, data[0])
	}
	return out
}

func (f *fakeLink) emit(frame link.Frame) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	handler(frame)
}

type harness struct {
	t     *testing.T
	s     *Session
	link  *fakeLink
	clock *timing.ManualClock
	errc  chan error
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	clock := timing.NewManualClock(time.Unix(1_700_000_000, 0))
	opts.Clock = clock
	opts.TickInterval = time.Hour
	opts.StatsInterval = time.Hour

	fl := newFakeLink()
	s := NewSession(log.New(io.Discard, "", 0), fl, opts)

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, s: s, link: fl, clock: clock, errc: make(chan error, 1)}
	go func() { h.errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-h.errc:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
	})

	// returns once Run has started the link
	h.snapshot()
	return h
}

func (h *harness) snapshot() Snapshot {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := h.s.Snapshot(ctx)
	require.NoError(h.t, err)
	return snap
}

func (h *harness) monitor(posA, posB int, loadKg float64) {
	h.link.emit(link.Frame{
		Source: link.SourceMonitor,
		Data: protocol.EncodeMonitor(protocol.MonitorSample{
			PositionA: posA,
			PositionB: posB,
			LoadA:     loadKg,
			LoadB:     loadKg,
		}),
		At: h.clock.Now(),
	})
}

func (h *harness) reps(up, down, rom, set uint8) {
	h.link.emit(link.Frame{
		Source: link.SourceRx,
		Data: protocol.EncodeRepNotification(protocol.RepNotification{
			TopCounter:      up,
			CompleteCounter: down,
			RepsRomCount:    rom,
			RepsSetCount:    set,
		}, protocol.FramingOpcode),
		At: h.clock.Now(),
	})
}

func (h *harness) start(p Params) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.s.StartWorkout(ctx, p)
}

func programParams(rep repcounter.Config) Params {
	return Params{
		Command: protocol.ProgramCommand{Mode: protocol.ModeOldSchool, WeightPerCableKg: 20},
		Rep:     rep,
	}
}

func TestNewSession_NilArgumentsPanic(t *testing.T) {
	assert.PanicsWithValue(t, "Session: logger cannot be nil", func() {
		NewSession(nil, newFakeLink(), Options{})
	})
	assert.PanicsWithValue(t, "Session: link cannot be nil", func() {
		NewSession(log.New(io.Discard, "", 0), nil, Options{})
	})
}

func TestRun_SendsInit(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Equal(t, []byte{protocol.OpCodeInit}, h.link.opcodes())
	assert.Equal(t, StateIdle, h.snapshot().Status.State)
}

func TestStartWorkout_Countdown(t *testing.T) {
	h := newHarness(t, Options{})
	h.monitor(120, 130, 0)

	require.NoError(t, h.start(programParams(repcounter.Config{WarmupTarget: 3, WorkingTarget: 10})))
	assert.Equal(t, []byte{protocol.OpCodeInit, protocol.OpCodeRegularCommand}, h.link.opcodes())

	status := h.snapshot().Status
	assert.Equal(t, StateCountdown, status.State)
	assert.Equal(t, 5, status.Countdown)
	assert.NotEmpty(t, status.SessionID)

	h.clock.Advance(1100 * time.Millisecond)
	h.monitor(120, 130, 0)
	assert.Equal(t, 4, h.snapshot().Status.Countdown)

	h.clock.Advance(4 * time.Second)
	h.monitor(120, 130, 0)
	snap := h.snapshot()
	assert.Equal(t, StateActive, snap.Status.State)
	assert.Equal(t, 0, snap.Status.Countdown)
	assert.Equal(t, 120, snap.Ranges.MinPosA.Value, "baseline comes from the latest position")
	assert.Equal(t, 130, snap.Ranges.MinPosB.Value)
}

func TestStartWorkout_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		sendErr error
		wantErr error
	}{
		{
			name:    "send failure",
			params:  programParams(repcounter.Config{WarmupTarget: 3}),
			sendErr: link.ErrClosed,
			wantErr: link.ErrClosed,
		},
		{
			name:    "invalid rep config",
			params:  programParams(repcounter.Config{WarmupTarget: -1}),
			wantErr: repcounter.ErrInvalidConfig,
		},
		{
			name:    "unsupported eccentric load",
			params:  Params{Command: protocol.EchoCommand{Level: protocol.EchoHard, EccentricLoadPercent: 75}},
			wantErr: protocol.ErrUnsupportedEccentricLoad,
		},
		{
			name:    "no command",
			params:  Params{},
			wantErr: protocol.ErrInvalidCommand,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.link.setSendErr(tt.sendErr)

			err := h.start(tt.params)
			assert.ErrorIs(t, err, tt.wantErr)

			status := h.snapshot().Status
			assert.Equal(t, StateIdle, status.State, "nothing changes on failure")
			assert.Empty(t, status.SessionID)
		})
	}
}

func TestStartWorkout_WhileActive(t *testing.T) {
	h := newHarness(t, Options{})
	p := programParams(repcounter.Config{WarmupTarget: 3})
	p.SkipCountdown = true
	require.NoError(t, h.start(p))
	assert.ErrorIs(t, h.start(p), ErrWorkoutInProgress)
}

func TestRepFlow_StopsAtTarget(t *testing.T) {
	h := newHarness(t, Options{})
	repEvents := make(chan repcounter.RepEvent, 32)
	defer h.s.ListenToRepEvents(repEvents)()

	p := programParams(repcounter.Config{WarmupTarget: 3, WorkingTarget: 2})
	p.SkipCountdown = true
	h.monitor(100, 100, 0)
	require.NoError(t, h.start(p))

	h.monitor(600, 600, 20)
	h.reps(0, 0, 0, 0)
	for i := uint8(1); i <= 3; i++ {
		h.reps(i, i-1, i-1, 0)
		h.reps(i, i, i, 0)
	}
	assert.True(t, h.snapshot().RepCount.IsWarmupComplete)

	h.reps(4, 3, 3, 0)
	assert.True(t, h.snapshot().RepCount.HasPendingRep)
	h.reps(4, 4, 3, 1)
	h.reps(5, 4, 3, 1)
	h.reps(5, 5, 3, 2)

	snap := h.snapshot()
	assert.Equal(t, StateSetSummary, snap.Status.State)
	require.NotNil(t, snap.Status.Summary)
	assert.Equal(t, StopTargetReached, snap.Status.Summary.Reason)
	assert.Equal(t, 3, snap.Status.Summary.WarmupReps)
	assert.Equal(t, 2, snap.Status.Summary.WorkingReps)
	assert.Equal(t, 20.0, snap.Status.Summary.PeakLoadKg)
	assert.Equal(t, protocol.OpCodeStopCommand, h.link.opcodes()[2])

	var types []repcounter.RepEventType
	for len(repEvents) > 0 {
		types = append(types, (<-repEvents).Type)
	}
	assert.Equal(t, []repcounter.RepEventType{
		repcounter.WarmupCompleted,
		repcounter.WarmupCompleted,
		repcounter.WarmupCompleted,
		repcounter.WarmupComplete,
		repcounter.WorkingPending,
		repcounter.WorkingCompleted,
		repcounter.WorkingPending,
		repcounter.WorkingCompleted,
		repcounter.WorkoutComplete,
	}, types)
}

func TestRepNotifications_IgnoredWhenIdle(t *testing.T) {
	h := newHarness(t, Options{})
	h.reps(0, 0, 0, 0)
	h.reps(1, 1, 1, 0)
	snap := h.snapshot()
	assert.Equal(t, 0, snap.RepCount.WarmupReps)
	assert.Equal(t, uint64(2), snap.Stats.RepNotifications)
}

func TestJustLift_AutoStop(t *testing.T) {
	h := newHarness(t, Options{})
	h.monitor(100, 100, 0)
	require.NoError(t, h.start(programParams(repcounter.Config{WarmupTarget: 3, JustLift: true})))
	assert.Equal(t, StateActive, h.snapshot().Status.State, "Just Lift skips the countdown")

	h.monitor(1100, 1100, 15)
	h.monitor(100, 100, 0)
	snap := h.snapshot()
	assert.Equal(t, 1000, snap.Ranges.RangeA)
	assert.True(t, snap.AutoStop.Active)
	assert.Equal(t, 3, snap.AutoStop.SecondsRemaining)

	h.clock.Advance(3 * time.Second)
	h.monitor(100, 100, 0)

	snap = h.snapshot()
	assert.Equal(t, StateSetSummary, snap.Status.State)
	require.NotNil(t, snap.Status.Summary)
	assert.Equal(t, StopAutoStop, snap.Status.Summary.Reason)
	assert.Equal(t, 3*time.Second, snap.Status.Summary.Duration)
	assert.InDelta(t, 5.0, snap.Status.Summary.AverageLoadKg, 1e-9)
	assert.Equal(t, []byte{protocol.OpCodeInit, protocol.OpCodeRegularCommand, protocol.OpCodeStopCommand}, h.link.opcodes())

	// summary is held, then the session returns to Idle with calibration intact
	h.clock.Advance(DefaultSummaryHold)
	h.monitor(100, 100, 0)
	snap = h.snapshot()
	assert.Equal(t, StateIdle, snap.Status.State)
	assert.Equal(t, 1000, snap.Ranges.RangeA)
	assert.Equal(t, 0, snap.RepCount.WarmupReps)
}

func TestJustLift_AMRAPDisablesAutoStop(t *testing.T) {
	h := newHarness(t, Options{})
	h.monitor(100, 100, 0)
	require.NoError(t, h.start(programParams(repcounter.Config{JustLift: true, AMRAP: true})))

	h.monitor(1100, 1100, 0)
	h.monitor(100, 100, 0)
	h.clock.Advance(10 * time.Second)
	h.monitor(100, 100, 0)

	snap := h.snapshot()
	assert.Equal(t, StateActive, snap.Status.State)
	assert.False(t, snap.AutoStop.Active)
}

func TestAutoStart(t *testing.T) {
	opts := Options{
		AutoStart:       true,
		AutoStartParams: programParams(repcounter.Config{WarmupTarget: 3, JustLift: true}),
	}

	t.Run("countdown starts the workout", func(t *testing.T) {
		h := newHarness(t, opts)
		h.monitor(600, 100, 0)
		snap := h.snapshot()
		assert.True(t, snap.Handles.LeftDetected)
		assert.Equal(t, 5, snap.Status.AutoStartIn)

		h.clock.Advance(2 * time.Second)
		h.monitor(600, 100, 0)
		assert.Equal(t, 3, h.snapshot().Status.AutoStartIn)

		h.clock.Advance(3 * time.Second)
		h.monitor(600, 100, 0)
		snap = h.snapshot()
		assert.Equal(t, StateActive, snap.Status.State)
		assert.Equal(t, 0, snap.Status.AutoStartIn)
		assert.Equal(t, []byte{protocol.OpCodeInit, protocol.OpCodeRegularCommand}, h.link.opcodes())
	})

	t.Run("releasing the handles cancels", func(t *testing.T) {
		h := newHarness(t, opts)
		h.monitor(600, 600, 0)
		assert.Equal(t, 5, h.snapshot().Status.AutoStartIn)

		h.clock.Advance(2 * time.Second)
		h.monitor(100, 100, 0)
		assert.Equal(t, 0, h.snapshot().Status.AutoStartIn)

		h.clock.Advance(5 * time.Second)
		h.monitor(100, 100, 0)
		assert.Equal(t, StateIdle, h.snapshot().Status.State)
		assert.Equal(t, []byte{protocol.OpCodeInit}, h.link.opcodes())
	})

	t.Run("disabled without a command", func(t *testing.T) {
		h := newHarness(t, Options{AutoStart: true})
		h.monitor(600, 600, 0)
		assert.Equal(t, 0, h.snapshot().Status.AutoStartIn)
	})
}

func TestStopWorkout(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, h.s.StopWorkout(ctx), ErrNoWorkout)

	require.NoError(t, h.start(programParams(repcounter.Config{WarmupTarget: 3})))
	require.NoError(t, h.s.StopWorkout(ctx))

	status := h.snapshot().Status
	assert.Equal(t, StateSetSummary, status.State)
	require.NotNil(t, status.Summary)
	assert.Equal(t, StopManual, status.Summary.Reason)
	assert.Equal(t, time.Duration(0), status.Summary.Duration, "stopped during the countdown")
}

func TestResetForNextSet(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	p := programParams(repcounter.Config{WarmupTarget: 1})
	p.SkipCountdown = true
	h.monitor(100, 100, 0)
	require.NoError(t, h.start(p))
	assert.ErrorIs(t, h.s.ResetForNextSet(ctx), ErrWorkoutInProgress)

	h.monitor(900, 900, 0)
	h.reps(0, 0, 0, 0)
	h.reps(1, 0, 0, 0)
	h.monitor(100, 100, 0)
	h.reps(1, 1, 1, 0)
	require.NoError(t, h.s.StopWorkout(ctx))

	before := h.snapshot()
	require.Equal(t, 1, before.RepCount.WarmupReps)

	require.NoError(t, h.s.ResetForNextSet(ctx))
	after := h.snapshot()
	assert.Equal(t, StateIdle, after.Status.State)
	assert.Nil(t, after.Status.Summary)
	assert.Equal(t, 0, after.RepCount.WarmupReps)
	assert.Equal(t, before.Ranges, after.Ranges, "calibration survives")
}

func TestStartWorkout_NextSetKeepsCalibration(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	p := programParams(repcounter.Config{WarmupTarget: 1})
	p.SkipCountdown = true
	h.monitor(100, 100, 0)
	require.NoError(t, h.start(p))
	h.monitor(900, 900, 0)
	h.reps(0, 0, 0, 0)
	h.reps(1, 0, 0, 0)
	h.monitor(100, 100, 0)
	h.reps(1, 1, 1, 0)
	require.NoError(t, h.s.StopWorkout(ctx))

	calibrated := h.snapshot().Ranges
	require.True(t, calibrated.MaxPosA.Valid)
	require.Equal(t, 800, calibrated.RangeA)

	require.NoError(t, h.s.ResetForNextSet(ctx))
	require.NoError(t, h.start(p))
	snap := h.snapshot()
	assert.Equal(t, StateActive, snap.Status.State)
	assert.Equal(t, 0, snap.RepCount.WarmupReps)
	assert.Equal(t, calibrated, snap.Ranges, "next set starts with the calibrated range")

	// starting straight from the summary keeps it too
	require.NoError(t, h.s.StopWorkout(ctx))
	require.NoError(t, h.start(p))
	assert.Equal(t, calibrated, h.snapshot().Ranges)
}

// repCapture records a program set: warmup 3, then 2 working reps
func repCapture(t *testing.T, start time.Time) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	rec, err := capture.NewRecorder(&buf, capture.NewHeader(protocol.FramingOpcode, "Vee_Test", start))
	require.NoError(t, err)

	at := start
	record := func(source link.Source, data []byte) {
		require.NoError(t, rec.Record(link.Frame{Source: source, Data: data, At: at}))
		at = at.Add(100 * time.Millisecond)
	}
	monitor := func(pos int, loadKg float64) {
		record(link.SourceMonitor, protocol.EncodeMonitor(protocol.MonitorSample{
			PositionA: pos, PositionB: pos, LoadA: loadKg, LoadB: loadKg,
		}))
	}
	reps := func(up, down, rom, set uint8) {
		record(link.SourceRx, protocol.EncodeRepNotification(protocol.RepNotification{
			TopCounter: up, CompleteCounter: down, RepsRomCount: rom, RepsSetCount: set,
		}, protocol.FramingOpcode))
	}

	monitor(100, 0)
	monitor(600, 20)
	reps(0, 0, 0, 0)
	for i := uint8(1); i <= 3; i++ {
		reps(i, i-1, i-1, 0)
		reps(i, i, i, 0)
	}
	reps(4, 3, 3, 0)
	reps(4, 4, 3, 1)
	reps(5, 4, 3, 1)
	reps(5, 5, 3, 2)
	monitor(100, 0)
	require.NoError(t, rec.Close())
	return &buf
}

func TestStartOnRun_UnpacedReplay(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p := programParams(repcounter.Config{WarmupTarget: 3, WorkingTarget: 2})

	for i := 0; i < 20; i++ {
		player, err := capture.NewPlayer(log.New(io.Discard, "", 0), repCapture(t, start), false)
		require.NoError(t, err)

		s := NewSession(log.New(io.Discard, "", 0), player, Options{
			ClockFromFrames: true,
			StartOnRun:      &p,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		require.NoError(t, s.Run(ctx))
		cancel()
		require.NoError(t, player.Close())

		status := s.Status()
		require.Equal(t, StateSetSummary, status.State, "run %d", i)
		require.NotNil(t, status.Summary)
		assert.Equal(t, StopTargetReached, status.Summary.Reason)
		assert.Equal(t, 3, status.Summary.WarmupReps)
		assert.Equal(t, 2, status.Summary.WorkingReps)
		assert.Equal(t, 20.0, status.Summary.PeakLoadKg)
	}
}

func TestStartOnRun_RejectedStart(t *testing.T) {
	p := Params{Rep: repcounter.Config{WarmupTarget: 3}}
	s := NewSession(log.New(io.Discard, "", 0), newFakeLink(), Options{StartOnRun: &p})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, protocol.ErrInvalidCommand)
}

func TestStats(t *testing.T) {
	h := newHarness(t, Options{})

	h.monitor(60000, 200, 0)
	h.link.emit(link.Frame{Source: link.SourceMonitor, Data: []byte{1, 2, 3}})
	h.link.emit(link.Frame{Source: link.SourceRx, Data: []byte{protocol.OpCodeInitResponse, 0}})

	stats := h.snapshot().Stats
	assert.Equal(t, uint64(3), stats.FramesReceived)
	assert.Equal(t, uint64(2), stats.MonitorFrames)
	assert.Equal(t, uint64(1), stats.RxFrames)
	assert.Equal(t, uint64(1), stats.Decoded)
	assert.Equal(t, uint64(1), stats.DroppedShort)
	assert.Equal(t, uint64(1), stats.UnknownRx)
	assert.Equal(t, uint64(1), stats.SpikesRejected)
	assert.Equal(t, uint64(1), stats.CommandsSent)
	assert.Contains(t, stats.String(), "=== Statistics")

	metric := h.snapshot().Metric
	assert.True(t, metric.Rejected.A)
	assert.Equal(t, 0, metric.PositionA)
	assert.Equal(t, 200, metric.PositionB)
}

func TestListenToFrames(t *testing.T) {
	h := newHarness(t, Options{})

	var mu sync.Mutex
	var got []link.Source
	stop := h.s.ListenToFrames(func(f link.Frame) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Source)
	})

	h.monitor(100, 100, 0)
	h.reps(0, 0, 0, 0)
	h.snapshot()
	stop()
	h.monitor(100, 100, 0)
	h.snapshot()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []link.Source{link.SourceMonitor, link.SourceRx}, got)
}

func TestRun_LinkLost(t *testing.T) {
	fl := newFakeLink()
	clock := timing.NewManualClock(time.Unix(1_700_000_000, 0))
	s := NewSession(log.New(io.Discard, "", 0), fl, Options{Clock: clock})

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	p := programParams(repcounter.Config{WarmupTarget: 3})
	p.SkipCountdown = true
	require.NoError(t, s.StartWorkout(context.Background(), p))

	require.NoError(t, fl.Close())
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	status := s.Status()
	assert.Equal(t, StateSetSummary, status.State)
	require.NotNil(t, status.Summary)
	assert.Equal(t, StopLinkLost, status.Summary.Reason)

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestRun_StartError(t *testing.T) {
	s := NewSession(log.New(io.Discard, "", 0), &failingLink{fakeLink: newFakeLink()}, Options{})
	err := s.Run(context.Background())
	assert.ErrorIs(t, err, errNoAdapter)
}

var errNoAdapter = errors.New("no adapter")

type failingLink struct {
	*fakeLink
}

func (f *failingLink) Start(context.Context, link.FrameHandler) error {
	return errNoAdapter
}

func TestClockFromFrames(t *testing.T) {
	fl := newFakeLink()
	s := NewSession(log.New(io.Discard, "", 0), fl, Options{ClockFromFrames: true, TickInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-errc)
	}()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	emit := func(at time.Time) {
		fl.emit(link.Frame{Source: link.SourceMonitor, Data: protocol.EncodeMonitor(protocol.MonitorSample{PositionA: 100, PositionB: 100}), At: at})
	}

	// wait for Run before emitting
	_, err := s.Snapshot(ctx)
	require.NoError(t, err)

	emit(base)
	require.NoError(t, s.StartWorkout(ctx, programParams(repcounter.Config{WarmupTarget: 3})))
	emit(base.Add(5 * time.Second))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateActive, snap.Status.State, "countdown runs on recorded time")
	assert.Equal(t, base, snap.Stats.StartTime)
}
