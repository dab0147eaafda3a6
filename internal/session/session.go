// Package session runs the telemetry pipeline for one connected machine: it decodes frames,
// filters spikes, counts reps, watches for auto-stop and auto-start, and drives the workout
// state machine.
//
// All pipeline state lives on the goroutine running Run. Frames arrive through a queue,
// public operations are handed to the same goroutine, and results are published on
// event streams.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lowaak/vitruvian-monitor/internal/autostop"
	"github.com/lowaak/vitruvian-monitor/internal/calibration"
	"github.com/lowaak/vitruvian-monitor/internal/events"
	"github.com/lowaak/vitruvian-monitor/internal/filter"
	"github.com/lowaak/vitruvian-monitor/internal/handles"
	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
	"github.com/lowaak/vitruvian-monitor/internal/timing"
)

var (
	// ErrNotRunning is returned by operations issued while Run is not active
	ErrNotRunning = errors.New("session not running")
	// ErrWorkoutInProgress is returned when starting or resetting during a countdown or set
	ErrWorkoutInProgress = errors.New("workout in progress")
	// ErrNoWorkout is returned when stopping with no countdown or set underway
	ErrNoWorkout = errors.New("no workout in progress")
)

const (
	DefaultTickInterval  = 100 * time.Millisecond
	DefaultStatsInterval = time.Second
	DefaultQueueSize     = 256
	DefaultSummaryHold   = 5 * time.Second
)

// Options configures a session. Zero values select the defaults.
type Options struct {
	Framing         protocol.Framing
	SpikeThreshold  int
	AutoStop        autostop.Settings
	HandleThreshold int

	// AutoStart arms a countdown whenever the handles are picked up while idle.
	// AutoStartParams is the workout it starts; a nil Command disables auto-start.
	AutoStart        bool
	AutoStartParams  Params
	CountdownSeconds int
	AutoStartSeconds int

	TickInterval  time.Duration
	StatsInterval time.Duration
	QueueSize     int
	SummaryHold   time.Duration // Just Lift returns to Idle this long after a set

	// Clock defaults to the system clock. With ClockFromFrames the session instead follows
	// the timestamps of the frames it receives, which makes replays deterministic.
	Clock           timing.Clock
	ClockFromFrames bool

	// StartOnRun starts this workout as soon as the link is up, before the first frame
	// is processed
	StartOnRun *Params
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.StatsInterval <= 0 {
		o.StatsInterval = DefaultStatsInterval
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.SummaryHold <= 0 {
		o.SummaryHold = DefaultSummaryHold
	}
	if o.Clock == nil {
		o.Clock = timing.SystemClock{}
	}
	return o
}

type request struct {
	fn    func() error
	reply chan error
}

// Session owns one link for its lifetime
type Session struct {
	logger *log.Logger
	link   link.Link
	opts   Options

	clock      timing.Clock
	frameClock *timing.ManualClock

	frames   chan link.Frame
	requests chan request
	quit     chan struct{}

	// pipeline goroutine state
	validator      *filter.Validator
	counter        *repcounter.RepCounter
	autoStop       *autostop.Evaluator
	detector       *handles.Detector
	startCountdown *handles.Countdown
	autoCountdown  *handles.Countdown

	state       WorkoutState
	params      Params
	sessionID   string
	activeSince time.Time
	summary     *SetSummary
	summaryAt   time.Time
	setEnded    bool // a set has ended on this link, so its calibration carries over
	latest      Metric
	peakLoad    float64
	loadSum     float64
	loadSamples int
	stats       Stats

	lastStatus   Status
	lastRepCount repcounter.RepCount
	lastRanges   calibration.RepRanges
	lastAutoStop autostop.State

	statusEvent   *events.ChannelEvent[Status]
	metricEvent   *events.ChannelEvent[Metric]
	repEvent      *events.ChannelEvent[repcounter.RepEvent]
	repCountEvent *events.ChannelEvent[repcounter.RepCount]
	rangesEvent   *events.ChannelEvent[calibration.RepRanges]
	autoStopEvent *events.ChannelEvent[autostop.State]
	handlesEvent  *events.ChannelEvent[handles.HandleState]
	statsEvent    *events.ChannelEvent[Stats]
	frameEvent    *events.CallbackEvent[link.Frame]
}

func NewSession(logger *log.Logger, l link.Link, opts Options) *Session {
	if logger == nil {
		panic("Session: logger cannot be nil")
	}
	if l == nil {
		panic("Session: link cannot be nil")
	}
	opts = opts.withDefaults()

	s := &Session{
		logger:   logger,
		link:     l,
		opts:     opts,
		clock:    opts.Clock,
		frames:   make(chan link.Frame, opts.QueueSize),
		requests: make(chan request),
		quit:     make(chan struct{}),

		validator:      filter.NewValidator(opts.SpikeThreshold),
		counter:        repcounter.NewRepCounter(logger),
		detector:       handles.NewDetector(opts.HandleThreshold),
		startCountdown: handles.NewCountdown(opts.CountdownSeconds),
		autoCountdown:  handles.NewCountdown(opts.AutoStartSeconds),

		statusEvent:   events.NewChannelEvent[Status](true),
		metricEvent:   events.NewChannelEvent[Metric](true),
		repEvent:      events.NewChannelEvent[repcounter.RepEvent](false),
		repCountEvent: events.NewChannelEvent[repcounter.RepCount](true),
		rangesEvent:   events.NewChannelEvent[calibration.RepRanges](true),
		autoStopEvent: events.NewChannelEvent[autostop.State](true),
		handlesEvent:  events.NewChannelEvent[handles.HandleState](true),
		statsEvent:    events.NewChannelEvent[Stats](true),
		frameEvent:    events.NewCallbackEvent[link.Frame](false),
	}
	if opts.ClockFromFrames {
		s.frameClock = timing.NewManualClock(time.Time{})
		s.clock = s.frameClock
	}
	s.autoStop = autostop.NewEvaluator(logger, s.clock, opts.AutoStop)
	s.stats = NewStats(s.clock.Now())
	s.statusEvent.Notify(s.lastStatus)
	return s
}

// Link returns the link the session runs over
func (s *Session) Link() link.Link {
	return s.link
}

// Run starts the link and processes frames until ctx ends or the link goes away.
// A set still underway when the link drops is summarised with StopLinkLost.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.quit)

	if err := s.link.Start(ctx, s.enqueue); err != nil {
		return fmt.Errorf("start %s: %w", s.link.Name(), err)
	}
	s.logger.Printf("Session: running on %s", s.link.Name())

	if err := s.send(protocol.InitCommand{}); err != nil {
		s.logger.Printf("Session: init failed: %v", err)
	}
	if p := s.opts.StartOnRun; p != nil {
		if err := s.startWorkout(*p); err != nil {
			return fmt.Errorf("start workout: %w", err)
		}
	}

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()
	statsTicker := time.NewTicker(s.opts.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("Session: stopping, %d frames processed", s.stats.FramesReceived)
			s.publishStats()
			return nil
		case <-s.link.Done():
			s.drain()
			s.logger.Printf("Session: %s closed", s.link.Name())
			if s.state == StateActive || s.state == StateCountdown {
				s.finishSet(StopLinkLost)
			}
			s.publishStats()
			return nil
		case f := <-s.frames:
			s.handleFrame(f)
		case req := <-s.requests:
			s.drain()
			req.reply <- req.fn()
		case <-ticker.C:
			s.advanceTimers(s.now())
		case <-statsTicker.C:
			s.publishStats()
		}
	}
}

// enqueue is the link's frame handler. It blocks while the queue is full so replays
// are never thinned, and returns immediately once Run has exited.
func (s *Session) enqueue(f link.Frame) {
	select {
	case s.frames <- f:
	case <-s.quit:
	}
}

// drain handles every frame already queued
func (s *Session) drain() {
	for {
		select {
		case f := <-s.frames:
			s.handleFrame(f)
		default:
			return
		}
	}
}

// do runs fn on the pipeline goroutine after the frames queued so far
func (s *Session) do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.quit:
		return ErrNotRunning
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartWorkout sends the start command and begins a set. Nothing changes if the
// command cannot be encoded or sent.
func (s *Session) StartWorkout(ctx context.Context, p Params) error {
	return s.do(ctx, func() error {
		return s.startWorkout(p)
	})
}

// StopWorkout sends Stop and moves to SetSummary
func (s *Session) StopWorkout(ctx context.Context) error {
	return s.do(ctx, func() error {
		return s.stopWorkout(StopManual)
	})
}

// ResetForNextSet clears the tallies from SetSummary and returns to Idle. Calibration is kept.
func (s *Session) ResetForNextSet(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.state == StateActive || s.state == StateCountdown {
			return ErrWorkoutInProgress
		}
		s.resetForNextSet()
		return nil
	})
}

// SendCommand writes an arbitrary command without touching the workout state
func (s *Session) SendCommand(ctx context.Context, cmd protocol.Command) error {
	return s.do(ctx, func() error {
		return s.send(cmd)
	})
}

// Snapshot returns the pipeline state after every frame queued so far has been handled
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		stats := s.stats
		stats.LastUpdateTime = s.now()
		stats.CalculateRates(stats.LastUpdateTime)
		snap = Snapshot{
			Status:   s.lastStatus,
			RepCount: s.counter.RepCount(),
			Ranges:   s.counter.Ranges(),
			AutoStop: s.autoStop.State(),
			Handles:  s.detector.State(),
			Metric:   s.latest,
			Stats:    stats,
		}
		return nil
	})
	return snap, err
}

// Status returns the last published status. Safe from any goroutine.
func (s *Session) Status() Status {
	status, _ := s.statusEvent.Last()
	return status
}

// Stats returns the last published statistics. Safe from any goroutine.
func (s *Session) Stats() Stats {
	stats, _ := s.statsEvent.Last()
	return stats
}

func (s *Session) ListenToStatus(ch chan<- Status) func() {
	return s.statusEvent.Listen(ch)
}

func (s *Session) ListenToMetrics(ch chan<- Metric) func() {
	return s.metricEvent.Listen(ch)
}

func (s *Session) ListenToRepEvents(ch chan<- repcounter.RepEvent) func() {
	return s.repEvent.Listen(ch)
}

func (s *Session) ListenToRepCount(ch chan<- repcounter.RepCount) func() {
	return s.repCountEvent.Listen(ch)
}

func (s *Session) ListenToRanges(ch chan<- calibration.RepRanges) func() {
	return s.rangesEvent.Listen(ch)
}

func (s *Session) ListenToAutoStop(ch chan<- autostop.State) func() {
	return s.autoStopEvent.Listen(ch)
}

func (s *Session) ListenToHandles(ch chan<- handles.HandleState) func() {
	return s.handlesEvent.Listen(ch)
}

func (s *Session) ListenToStats(ch chan<- Stats) func() {
	return s.statsEvent.Listen(ch)
}

// ListenToFrames calls fn with every raw frame, on the pipeline goroutine, before it is
// decoded. fn must not block.
func (s *Session) ListenToFrames(fn func(link.Frame)) func() {
	return s.frameEvent.Listen(fn)
}

func (s *Session) now() time.Time {
	return s.clock.Now()
}

func (s *Session) send(cmd protocol.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	if err := s.link.Send(data); err != nil {
		s.stats.CommandErrors++
		return fmt.Errorf("send %s: %w", cmd.Describe(), err)
	}
	s.stats.CommandsSent++
	s.logger.Printf("Session: sent %s", cmd.Describe())
	return nil
}

func (s *Session) publishStats() {
	now := s.now()
	s.stats.LastUpdateTime = now
	s.stats.CalculateRates(now)
	s.statsEvent.Notify(s.stats)
}
