package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lowaak/vitruvian-monitor/internal/autostop"
	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
	"github.com/lowaak/vitruvian-monitor/internal/repcounter"
)

// rawSample is a decoded position and load reading before spike filtering
type rawSample struct {
	ticks      uint32
	posA, posB int
	loadA      float64
	loadB      float64
	velA, velB float64
	status     protocol.SampleStatus
	hasStatus  bool
}

func (s *Session) observe(at time.Time) time.Time {
	if s.frameClock != nil && !at.IsZero() && at.After(s.frameClock.Now()) {
		s.frameClock.Set(at)
		if s.stats.StartTime.IsZero() {
			s.stats.Reset(at)
		}
	}
	return s.now()
}

func (s *Session) handleFrame(f link.Frame) {
	now := s.observe(f.At)
	s.stats.FramesReceived++
	s.frameEvent.Notify(f)

	switch f.Source {
	case link.SourceMonitor:
		s.stats.MonitorFrames++
		m, ok := protocol.DecodeMonitor(f.Data)
		if !ok {
			s.stats.DroppedShort++
			break
		}
		s.stats.Decoded++
		s.handleSample(rawSample{
			ticks:     m.Ticks,
			posA:      m.PositionA,
			posB:      m.PositionB,
			loadA:     m.LoadA,
			loadB:     m.LoadB,
			status:    m.Status,
			hasStatus: m.HasStatus,
		}, now)

	case link.SourceRx:
		s.stats.RxFrames++
		rx, ok := protocol.DecodeRx(f.Data, s.opts.Framing)
		if !ok {
			s.stats.UnknownRx++
			break
		}
		s.stats.Decoded++
		switch rx.Kind {
		case protocol.RxRepNotification:
			s.stats.RepNotifications++
			s.handleReps(rx.Reps)
		case protocol.RxMetrics:
			s.handleSample(rawSample{
				posA:  rx.Metrics.PositionA,
				posB:  rx.Metrics.PositionB,
				loadA: rx.Metrics.LoadA,
				loadB: rx.Metrics.LoadB,
				velA:  rx.Metrics.VelocityA,
				velB:  rx.Metrics.VelocityB,
			}, now)
		}
	}

	s.advanceTimers(now)
}

func (s *Session) handleSample(raw rawSample, now time.Time) {
	posA, posB, rejected := s.validator.Validate(raw.posA, raw.posB)
	if rejected.A {
		s.stats.SpikesRejected++
	}
	if rejected.B {
		s.stats.SpikesRejected++
	}

	s.latest = Metric{
		Ticks:     raw.ticks,
		PositionA: posA,
		PositionB: posB,
		LoadA:     raw.loadA,
		LoadB:     raw.loadB,
		VelocityA: raw.velA,
		VelocityB: raw.velB,
		Status:    raw.status,
		HasStatus: raw.hasStatus,
		Rejected:  rejected,
		At:        now,
	}
	s.metricEvent.Notify(s.latest)

	if state, changed := s.detector.Update(posA, posB); changed {
		s.handlesEvent.Notify(state)
	}
	s.updateAutoStart(now)

	if s.state != StateActive {
		return
	}

	s.trackLoad(raw.loadA + raw.loadB)
	s.counter.UpdatePendingProgress(posA)

	justLift := s.params.Rep.JustLift
	if justLift {
		s.counter.UpdatePositionRangesContinuously(posA, posB)
	}
	s.publishCounter()

	if justLift && !s.params.Rep.AMRAP {
		state, triggered := s.autoStop.Evaluate(autostop.Sample{
			PosA: posA,
			PosB: posB,
			VelA: raw.velA,
			VelB: raw.velB,
		}, s.counter)
		s.publishAutoStop(state)
		if triggered {
			s.stopAndLog(StopAutoStop)
			return
		}
	}

	if s.counter.ShouldStop() {
		s.stopAndLog(StopTargetReached)
	}
}

func (s *Session) handleReps(n protocol.RepNotification) {
	if s.state != StateActive {
		return
	}
	evts := s.counter.Process(repcounter.Input{
		RepsRomCount: n.RepsRomCount,
		RepsSetCount: n.RepsSetCount,
		Up:           n.TopCounter,
		Down:         n.CompleteCounter,
		PosA:         s.latest.PositionA,
		PosB:         s.latest.PositionB,
	})
	for _, e := range evts {
		s.repEvent.Notify(e)
	}
	s.publishCounter()

	if s.counter.ShouldStop() {
		s.stopAndLog(StopTargetReached)
	}
}

func (s *Session) trackLoad(total float64) {
	perCable := total / 2
	if perCable > s.peakLoad {
		s.peakLoad = perCable
	}
	s.loadSum += perCable
	s.loadSamples++
}

// advanceTimers moves the start countdown, the auto-start countdown and the Just Lift
// summary hold forward to now
func (s *Session) advanceTimers(now time.Time) {
	if s.state == StateCountdown {
		if s.startCountdown.Expired(now) {
			s.enterActive(now)
		} else if left, ok := s.startCountdown.Remaining(now); ok {
			s.setStatus(func(st *Status) { st.Countdown = left })
		}
	}

	s.updateAutoStart(now)
	if s.autoCountdown.Expired(now) {
		s.autoCountdown.Cancel()
		s.setStatus(func(st *Status) { st.AutoStartIn = 0 })
		p := s.opts.AutoStartParams
		if p.Rep.JustLift {
			p.SkipCountdown = true
		}
		s.logger.Printf("Session: handles held, starting %s", p.Command.Describe())
		if err := s.startWorkout(p); err != nil {
			s.logger.Printf("Session: auto-start failed: %v", err)
		}
	}

	if s.state == StateSetSummary && s.params.Rep.JustLift && now.Sub(s.summaryAt) >= s.opts.SummaryHold {
		s.resetForNextSet()
	}
}

func (s *Session) autoStartArmable() bool {
	if !s.opts.AutoStart || s.opts.AutoStartParams.Command == nil {
		return false
	}
	switch s.state {
	case StateIdle:
		return true
	case StateSetSummary:
		return s.opts.AutoStartParams.Rep.JustLift
	default:
		return false
	}
}

// updateAutoStart arms the countdown while the handles are held and cancels it otherwise
func (s *Session) updateAutoStart(now time.Time) {
	if s.autoStartArmable() && s.detector.State().Any() {
		if !s.autoCountdown.Running() {
			s.logger.Printf("Session: handles detected, auto-start armed")
		}
		s.autoCountdown.Start(now)
		left, _ := s.autoCountdown.Remaining(now)
		s.setStatus(func(st *Status) { st.AutoStartIn = max(left, 1) })
		return
	}
	if s.autoCountdown.Running() {
		s.autoCountdown.Cancel()
		s.setStatus(func(st *Status) { st.AutoStartIn = 0 })
	}
}

func (s *Session) startWorkout(p Params) error {
	if s.state == StateActive || s.state == StateCountdown {
		return ErrWorkoutInProgress
	}
	if p.Command == nil {
		return fmt.Errorf("%w: no start command", protocol.ErrInvalidCommand)
	}
	if err := p.Rep.Validate(); err != nil {
		return err
	}
	if err := s.send(p.Command); err != nil {
		return err
	}

	now := s.now()
	s.autoCountdown.Cancel()
	s.sessionID = uuid.NewString()
	s.params = p
	if s.setEnded {
		s.counter.ResetCountsOnly()
	} else {
		s.counter.Reset()
	}
	if err := s.counter.Configure(p.Rep); err != nil {
		// validated above
		s.logger.Printf("Session: configure failed: %v", err)
	}
	s.autoStop.Reset()
	s.summary = nil
	s.peakLoad, s.loadSum, s.loadSamples = 0, 0, 0
	s.logger.Printf("Session: workout %s started (%s)", s.sessionID, p.Command.Describe())

	if p.SkipCountdown || p.Rep.JustLift {
		s.enterActive(now)
	} else {
		s.startCountdown.Cancel()
		s.startCountdown.Start(now)
		left, _ := s.startCountdown.Remaining(now)
		s.setStatus(func(st *Status) {
			st.State = StateCountdown
			st.Countdown = left
			st.AutoStartIn = 0
			st.SessionID = s.sessionID
			st.Summary = nil
		})
		s.state = StateCountdown
	}
	s.publishCounter()
	s.publishAutoStop(s.autoStop.State())
	return nil
}

func (s *Session) enterActive(now time.Time) {
	s.startCountdown.Cancel()
	s.state = StateActive
	s.activeSince = now
	s.counter.SetInitialBaseline(s.latest.PositionA, s.latest.PositionB)
	s.setStatus(func(st *Status) {
		st.State = StateActive
		st.Countdown = 0
		st.AutoStartIn = 0
		st.SessionID = s.sessionID
		st.Summary = nil
	})
	s.publishCounter()
}

func (s *Session) stopWorkout(reason StopReason) error {
	if s.state != StateActive && s.state != StateCountdown {
		return ErrNoWorkout
	}
	err := s.send(protocol.StopCommand{})
	s.finishSet(reason)
	return err
}

// stopAndLog is stopWorkout for the pipeline's own triggers, where nobody waits on the error
func (s *Session) stopAndLog(reason StopReason) {
	if err := s.stopWorkout(reason); err != nil {
		s.logger.Printf("Session: stop (%s) failed: %v", reason, err)
	}
}

func (s *Session) finishSet(reason StopReason) {
	now := s.now()
	s.startCountdown.Cancel()

	count := s.counter.RepCount()
	summary := &SetSummary{
		SessionID:   s.sessionID,
		WarmupReps:  count.WarmupReps,
		WorkingReps: count.WorkingReps,
		PeakLoadKg:  s.peakLoad,
		Reason:      reason,
	}
	if s.state == StateActive {
		summary.Duration = now.Sub(s.activeSince)
	}
	if s.loadSamples > 0 {
		summary.AverageLoadKg = s.loadSum / float64(s.loadSamples)
	}

	s.state = StateSetSummary
	s.setEnded = true
	s.summary = summary
	s.summaryAt = now
	s.logger.Printf("Session: set %s ended (%s): warmup=%d working=%d peak=%.1fkg",
		s.sessionID, reason, summary.WarmupReps, summary.WorkingReps, summary.PeakLoadKg)
	s.setStatus(func(st *Status) {
		st.State = StateSetSummary
		st.Countdown = 0
		st.Summary = summary
	})
}

func (s *Session) resetForNextSet() {
	s.counter.ResetCountsOnly()
	s.autoStop.Reset()
	s.summary = nil
	s.state = StateIdle
	s.setStatus(func(st *Status) {
		st.State = StateIdle
		st.Countdown = 0
		st.Summary = nil
	})
	s.publishCounter()
	s.publishAutoStop(s.autoStop.State())
}

// setStatus applies fn to a copy of the last status and publishes it when it changed
func (s *Session) setStatus(fn func(*Status)) {
	next := s.lastStatus
	fn(&next)
	if next == s.lastStatus {
		return
	}
	s.lastStatus = next
	s.statusEvent.Notify(next)
}

func (s *Session) publishCounter() {
	if count := s.counter.RepCount(); count != s.lastRepCount {
		s.lastRepCount = count
		s.repCountEvent.Notify(count)
	}
	if ranges := s.counter.Ranges(); ranges != s.lastRanges {
		s.lastRanges = ranges
		s.rangesEvent.Notify(ranges)
	}
}

func (s *Session) publishAutoStop(state autostop.State) {
	if state != s.lastAutoStop {
		s.lastAutoStop = state
		s.autoStopEvent.Notify(state)
	}
}
