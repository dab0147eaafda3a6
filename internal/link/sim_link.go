package link

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
)

// simSpikePosition is far outside any real cable travel
const simSpikePosition = 60000

// SimConfig scripts a simulated machine
type SimConfig struct {
	Name        string
	Framing     protocol.Framing
	Interval    time.Duration // monitor frame period
	RepDuration time.Duration // one full top-and-back cycle
	Bottom      int
	Top         int
	WarmupReps  int
	WorkingReps int     // 0 lifts until a stop command
	EchoLoadKg  float64 // load shown during echo sets
	AutoLift    bool    // start lifting on connect, as a Just Lift user would
	SpikeEvery  int     // every Nth monitor frame carries a cable A spike; 0 disables
}

func DefaultSimConfig() SimConfig {
	return SimConfig{
		Name:        "Vee_Simulator",
		Framing:     protocol.FramingOpcode,
		Interval:    100 * time.Millisecond,
		RepDuration: 2 * time.Second,
		Bottom:      100,
		Top:         1100,
		WarmupReps:  3,
		WorkingReps: 10,
		EchoLoadKg:  20,
	}
}

func (c SimConfig) withDefaults() SimConfig {
	d := DefaultSimConfig()
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.RepDuration <= 0 {
		c.RepDuration = d.RepDuration
	}
	if c.Top <= c.Bottom {
		c.Bottom, c.Top = d.Bottom, d.Top
	}
	if c.WarmupReps < 0 {
		c.WarmupReps = 0
	}
	if c.WorkingReps < 0 {
		c.WorkingReps = 0
	}
	if c.EchoLoadKg <= 0 {
		c.EchoLoadKg = d.EchoLoadKg
	}
	return c
}

// simMachine is the deterministic core of SimLink, advanced one monitor period at a time
type simMachine struct {
	config   SimConfig
	ticks    uint32
	frames   int
	moving   bool
	phase    float64 // 0..1 through the current rep
	repsDone int
	counters protocol.RepNotification
	loadKg   float64
}

func newSimMachine(config SimConfig) *simMachine {
	m := &simMachine{config: config}
	if config.AutoLift {
		m.begin(config.EchoLoadKg)
	}
	return m
}

func (m *simMachine) begin(loadKg float64) {
	m.moving = true
	m.phase = 0
	m.repsDone = 0
	m.loadKg = loadKg
	m.counters.RepsRomCount = 0
	m.counters.RepsSetCount = 0
}

func (m *simMachine) command(data []byte) {
	if len(data) == 0 {
		return
	}
	switch data[0] {
	case protocol.OpCodeRegularCommand:
		if len(data) >= 4 {
			m.begin(float64(binary.LittleEndian.Uint16(data[2:4])) / 100.0)
		}
	case protocol.OpCodeEchoCommand:
		m.begin(m.config.EchoLoadKg)
	case protocol.OpCodeStopCommand:
		m.moving = false
		m.phase = 0
		m.loadKg = 0
	}
}

func (m *simMachine) position() int {
	span := float64(m.config.Top - m.config.Bottom)
	return m.config.Bottom + int(math.Round(span*(1-math.Cos(2*math.Pi*m.phase))/2))
}

// advance moves the script forward by dt and returns the monitor frame followed by any
// rep notifications
func (m *simMachine) advance(dt time.Duration, now time.Time) []Frame {
	var reps []Frame
	if m.moving {
		prev := m.phase
		m.phase += dt.Seconds() / m.config.RepDuration.Seconds()
		if prev < 0.5 && m.phase >= 0.5 {
			m.counters.TopCounter++
			reps = append(reps, m.repFrame(now))
		}
		if m.phase >= 1 {
			m.counters.CompleteCounter++
			m.repsDone++
			if m.repsDone <= m.config.WarmupReps {
				m.counters.RepsRomCount = uint8(m.repsDone)
			} else {
				m.counters.RepsSetCount = uint8(m.repsDone - m.config.WarmupReps)
			}
			reps = append(reps, m.repFrame(now))
			m.phase = 0
			if m.config.WorkingReps > 0 && m.repsDone >= m.config.WarmupReps+m.config.WorkingReps {
				m.moving = false
			}
		}
	}

	m.ticks++
	m.frames++
	pos := m.position()
	posA := pos
	if m.config.SpikeEvery > 0 && m.frames%m.config.SpikeEvery == 0 {
		posA = simSpikePosition
	}
	load := 0.0
	if m.moving {
		load = m.loadKg
	}
	monitor := Frame{
		Source: SourceMonitor,
		Data: protocol.EncodeMonitor(protocol.MonitorSample{
			Ticks:     m.ticks,
			PositionA: posA,
			PositionB: pos,
			LoadA:     load,
			LoadB:     load,
		}),
		At: now,
	}
	return append([]Frame{monitor}, reps...)
}

func (m *simMachine) repFrame(now time.Time) Frame {
	return Frame{
		Source: SourceRx,
		Data:   protocol.EncodeRepNotification(m.counters, m.config.Framing),
		At:     now,
	}
}

// SimLink is a simulated machine. It emits monitor frames every Interval, lifts through
// scripted reps after a program or echo command, and records every command written to it.
type SimLink struct {
	logger *log.Logger
	config SimConfig

	mu      sync.Mutex
	machine *simMachine
	sent    [][]byte

	started   atomic.Bool
	closed    atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Link = (*SimLink)(nil)

func NewSimLink(logger *log.Logger, config SimConfig) *SimLink {
	if logger == nil {
		panic("SimLink: logger cannot be nil")
	}
	config = config.withDefaults()
	return &SimLink{
		logger:  logger,
		config:  config,
		machine: newSimMachine(config),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *SimLink) Name() string {
	return "simulator " + s.config.Name
}

func (s *SimLink) Start(ctx context.Context, handler FrameHandler) error {
	if handler == nil {
		panic("SimLink: handler cannot be nil")
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("SimLink: already started")
	}
	s.logger.Printf("SimLink: %s started, frame every %v", s.config.Name, s.config.Interval)

	go_func_utils.SafeGoWait(s.logger, &s.wg, "SimLink ticker", func() {
		defer close(s.done)
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case now := <-ticker.C:
				for _, frame := range s.step(now) {
					handler(frame)
				}
			}
		}
	})
	return nil
}

func (s *SimLink) step(now time.Time) []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.advance(s.config.Interval, now)
}

func (s *SimLink) Send(data []byte) error {
	if !s.started.Load() {
		return ErrNotStarted
	}
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), data...))
	s.machine.command(data)
	s.logger.Printf("SimLink: received command % x", data)
	return nil
}

// Sent returns copies of every command written so far
func (s *SimLink) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	for i, b := range s.sent {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

func (s *SimLink) Done() <-chan struct{} {
	return s.done
}

func (s *SimLink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		if s.started.CompareAndSwap(false, true) {
			close(s.done)
		}
	})
	s.wg.Wait()
	return nil
}
