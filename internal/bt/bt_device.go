package bt

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
)

// DefaultPollInterval is how often the monitor characteristic is read
const DefaultPollInterval = 100 * time.Millisecond

const readBufferSize = 512

// consecutive monitor read failures tolerated before the link gives up
const maxPollFailures = 20

// MachineLink is a connected machine. It implements link.Link over the Nordic UART
// service plus the monitor characteristic.
type MachineLink struct {
	logger       *log.Logger
	machine      Machine
	device       bluetooth.Device
	pollInterval time.Duration

	bleMu   sync.Mutex // serializes GATT operations
	rx      *bluetooth.DeviceCharacteristic
	tx      *bluetooth.DeviceCharacteristic
	monitor *bluetooth.DeviceCharacteristic

	started   atomic.Bool
	closed    atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ link.Link = (*MachineLink)(nil)

func newMachineLink(logger *log.Logger, machine Machine, device bluetooth.Device, pollInterval time.Duration) (*MachineLink, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	m := &MachineLink{
		logger:       logger,
		machine:      machine,
		device:       device,
		pollInterval: pollInterval,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	if err := m.discover(); err != nil {
		return nil, err
	}
	return m, nil
}

// discover finds the three characteristics. All services are discovered in one call
// since discovering them one at a time interrupts services already in use.
func (m *MachineLink) discover() error {
	m.bleMu.Lock()
	defer m.bleMu.Unlock()

	services, err := m.device.DiscoverServices(nil)
	if err != nil {
		return fmt.Errorf("error discovering services: %w", err)
	}

	byUUID := make(map[string]*bluetooth.DeviceCharacteristic)
	for i := range services {
		svc := &services[i]
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("could not discover characteristics for service %v: %w", svc.UUID().String(), err)
		}
		for j := range chars {
			c := &chars[j]
			byUUID[strings.ToLower(c.UUID().String())] = c
		}
		m.logger.Printf("BTDevice: service %s has %d characteristics", svc.UUID().String(), len(chars))
	}

	lookup := func(uuid string) (*bluetooth.DeviceCharacteristic, error) {
		c, ok := byUUID[uuid]
		if !ok {
			return nil, fmt.Errorf("%w: characteristic %s", ErrMissingCharacteristic, uuid)
		}
		return c, nil
	}
	if m.rx, err = lookup(protocol.CharUUIDRx); err != nil {
		return err
	}
	if m.tx, err = lookup(protocol.CharUUIDTx); err != nil {
		return err
	}
	if m.monitor, err = lookup(protocol.CharUUIDMonitor); err != nil {
		return err
	}
	return nil
}

func (m *MachineLink) Name() string {
	return fmt.Sprintf("%s (%s)", m.machine.Name, m.machine.Address)
}

func (m *MachineLink) Machine() Machine {
	return m.machine
}

// Start subscribes to RX notifications and begins polling the monitor characteristic
func (m *MachineLink) Start(ctx context.Context, handler link.FrameHandler) error {
	if handler == nil {
		panic("BTDevice: handler cannot be nil")
	}
	if m.closed.Load() {
		return link.ErrClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		return fmt.Errorf("BTDevice: already started")
	}

	m.bleMu.Lock()
	err := m.rx.EnableNotifications(func(buf []byte) {
		if m.closed.Load() {
			return
		}
		handler(link.Frame{Source: link.SourceRx, Data: append([]byte(nil), buf...), At: time.Now()})
	})
	m.bleMu.Unlock()
	if err != nil {
		m.started.Store(false)
		return fmt.Errorf("failed to enable RX notifications: %w", err)
	}
	m.logger.Printf("BTDevice: RX notifications enabled for %s", m.Name())

	go_func_utils.SafeGoWait(m.logger, &m.wg, "BTDevice monitor poll", func() {
		defer close(m.done)
		m.pollMonitor(ctx, handler)
	})
	return nil
}

func (m *MachineLink) pollMonitor(ctx context.Context, handler link.FrameHandler) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	buf := make([]byte, readBufferSize)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return
		case <-m.stop:
			return
		case <-ticker.C:
		}

		m.bleMu.Lock()
		n, err := m.monitor.Read(buf)
		m.bleMu.Unlock()
		if err != nil {
			failures++
			m.logger.Printf("BTDevice: monitor read failed (%d): %v", failures, err)
			if failures >= maxPollFailures {
				m.logger.Printf("BTDevice: giving up on %s", m.Name())
				m.closed.Store(true)
				return
			}
			continue
		}
		failures = 0
		handler(link.Frame{Source: link.SourceMonitor, Data: append([]byte(nil), buf[:n]...), At: time.Now()})
	}
}

// Send writes one command without waiting for a response
func (m *MachineLink) Send(data []byte) error {
	if !m.started.Load() {
		return link.ErrNotStarted
	}
	if m.closed.Load() {
		return link.ErrClosed
	}
	m.bleMu.Lock()
	defer m.bleMu.Unlock()
	if _, err := m.tx.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("failed to write characteristic: %w", err)
	}
	return nil
}

func (m *MachineLink) Done() <-chan struct{} {
	return m.done
}

// disconnected is called from the adapter's connect handler
func (m *MachineLink) disconnected() {
	m.logger.Printf("BTDevice: %s disconnected", m.Name())
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.stop)
		if m.started.CompareAndSwap(false, true) {
			close(m.done)
		}
	})
}

func (m *MachineLink) shutdown() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.stop)

		m.bleMu.Lock()
		if m.started.Load() {
			if err := m.rx.EnableNotifications(nil); err != nil {
				m.logger.Printf("BTDevice: disable notifications failed: %v", err)
			}
		}
		if err := m.device.Disconnect(); err != nil {
			m.logger.Printf("BTDevice: disconnect failed: %v", err)
		}
		m.bleMu.Unlock()

		if m.started.CompareAndSwap(false, true) {
			close(m.done)
		}
	})
}

// Close unsubscribes, disconnects and waits for the poll loop to exit
func (m *MachineLink) Close() error {
	m.shutdown()
	m.wg.Wait()
	return nil
}
