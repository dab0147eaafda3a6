// Package bt finds machines over Bluetooth LE and connects to them.
package bt

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/lowaak/vitruvian-monitor/internal/events"
	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
)

var (
	ErrDeviceNotFound        = errors.New("machine not found")
	ErrMissingCharacteristic = errors.New("machine is missing a required characteristic")
)

// Connection attempts and the pause between them
const (
	ConnectAttempts = 3
	ConnectDelay    = 100 * time.Millisecond
)

const defaultStaleAfter = 10 * time.Second

// Machine is a machine seen while scanning
type Machine struct {
	Address  string
	Name     string
	RSSI     int16
	LastSeen time.Time
}

type seenMachine struct {
	Machine
	address bluetooth.Address
}

// BTManager scans for machines by advertised name and opens MachineLinks to them
type BTManager struct {
	adapter    *bluetooth.Adapter
	logger     *log.Logger
	staleAfter time.Duration

	mu       sync.RWMutex
	seen     map[string]*seenMachine
	links    map[string]*MachineLink
	scanning bool

	machinesEvent *events.ChannelEvent[[]Machine]
	scanCancel    context.CancelFunc
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewBTManager creates a manager. staleAfter <= 0 forgets machines not seen for 10s.
func NewBTManager(adapter *bluetooth.Adapter, logger *log.Logger, staleAfter time.Duration) *BTManager {
	if logger == nil {
		panic("BTManager: logger cannot be nil")
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BTManager{
		adapter:       adapter,
		logger:        logger,
		staleAfter:    staleAfter,
		seen:          make(map[string]*seenMachine),
		links:         make(map[string]*MachineLink),
		machinesEvent: events.NewChannelEvent[[]Machine](true),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Enable powers the adapter and routes disconnects to the owning link
func (m *BTManager) Enable() error {
	m.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addr := device.Address.String()
		if connected {
			m.logger.Printf("BTManager: device connected: %s", addr)
			return
		}
		m.mu.Lock()
		l, ok := m.links[addr]
		delete(m.links, addr)
		m.mu.Unlock()
		if ok {
			l.disconnected()
		} else {
			m.logger.Printf("BTManager: device disconnected: %s", addr)
		}
	})
	return m.adapter.Enable()
}

// StartScan looks for machines until StopScan or Shutdown. Results are published once a second.
func (m *BTManager) StartScan() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scanning && m.scanCancel != nil {
		m.logger.Printf("BTManager: restarting scan")
		m.scanCancel()
	}
	m.scanning = true
	scanCtx, cancel := context.WithCancel(m.ctx)
	m.scanCancel = cancel
	m.logger.Printf("BTManager: scanning for %v", protocol.DeviceNamePrefixes)

	go_func_utils.SafeGoWait(m.logger, &m.wg, "BTManager scan", func() {
		err := m.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			select {
			case <-scanCtx.Done():
				return
			default:
			}
			m.observe(result.Address.String(), result.Address, result.LocalName(), result.RSSI, time.Now())
		})
		if err != nil {
			m.logger.Printf("BTManager: scan error: %v", err)
		}
	})

	go_func_utils.SafeGoWait(m.logger, &m.wg, "BTManager publish", func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-scanCtx.Done():
				return
			case now := <-ticker.C:
				m.pruneStale(now)
				m.machinesEvent.Notify(m.Machines())
			}
		}
	})
}

// observe records one advertisement. Names without a machine prefix are ignored.
func (m *BTManager) observe(key string, address bluetooth.Address, name string, rssi int16, now time.Time) bool {
	if !protocol.IsMachineName(name) {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.seen[key]
	if !ok {
		s = &seenMachine{address: address}
		m.seen[key] = s
		m.logger.Printf("BTManager: found %s (%s) [RSSI: %d]", name, key, rssi)
	}
	s.Machine = Machine{Address: key, Name: name, RSSI: rssi, LastSeen: now}
	return true
}

func (m *BTManager) pruneStale(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.seen {
		if now.Sub(s.LastSeen) > m.staleAfter {
			delete(m.seen, key)
			m.logger.Printf("BTManager: %s not seen for %v", key, m.staleAfter)
		}
	}
}

func (m *BTManager) StopScan() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.scanning {
		return nil
	}
	m.scanning = false
	if m.scanCancel != nil {
		m.scanCancel()
		m.scanCancel = nil
	}
	return m.adapter.StopScan()
}

func (m *BTManager) IsScanning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scanning
}

// Machines returns the machines currently known, strongest signal first
func (m *BTManager) Machines() []Machine {
	m.mu.RLock()
	out := make([]Machine, 0, len(m.seen))
	for _, s := range m.seen {
		out = append(out, s.Machine)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RSSI != out[j].RSSI {
			return out[i].RSSI > out[j].RSSI
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// ListenToMachines registers ch for the once-a-second machine list
func (m *BTManager) ListenToMachines(ch chan<- []Machine) func() {
	return m.machinesEvent.Listen(ch)
}

// WaitForMachine blocks until a machine matching address is seen. An empty address
// matches the strongest machine.
func (m *BTManager) WaitForMachine(ctx context.Context, address string) (Machine, error) {
	ch := make(chan []Machine, 1)
	defer m.ListenToMachines(ch)()
	for {
		if machine, ok := pickMachine(m.Machines(), address); ok {
			return machine, nil
		}
		select {
		case <-ctx.Done():
			if address == "" {
				return Machine{}, fmt.Errorf("%w: no machine advertising %v", ErrDeviceNotFound, protocol.DeviceNamePrefixes)
			}
			return Machine{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
		case <-ch:
		}
	}
}

func pickMachine(machines []Machine, address string) (Machine, bool) {
	for _, machine := range machines {
		if address == "" || strings.EqualFold(machine.Address, address) {
			return machine, true
		}
	}
	return Machine{}, false
}

// Connect opens a link to a scanned machine, retrying a refused connection
func (m *BTManager) Connect(ctx context.Context, machine Machine, pollInterval time.Duration) (*MachineLink, error) {
	m.mu.RLock()
	s, ok := m.seen[machine.Address]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, machine.Address)
	}

	var device bluetooth.Device
	err := retry(ctx, ConnectAttempts, ConnectDelay, func(attempt int) error {
		m.logger.Printf("BTManager: connecting to %s (attempt %d/%d)", machine.Name, attempt, ConnectAttempts)
		d, err := m.adapter.Connect(s.address, bluetooth.ConnectionParams{})
		if err != nil {
			m.logger.Printf("BTManager: connection error: %v", err)
			return err
		}
		device = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", machine.Name, err)
	}

	l, err := newMachineLink(m.logger, machine, device, pollInterval)
	if err != nil {
		_ = device.Disconnect()
		return nil, fmt.Errorf("connect to %s: %w", machine.Name, err)
	}

	m.mu.Lock()
	m.links[machine.Address] = l
	m.mu.Unlock()
	m.logger.Printf("BTManager: connected to %s", l.Name())
	return l, nil
}

// Shutdown closes every link, stops scanning and waits for the manager's goroutines
func (m *BTManager) Shutdown() {
	m.logger.Println("BTManager: shutting down")
	m.mu.Lock()
	links := make([]*MachineLink, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.links = make(map[string]*MachineLink)
	m.mu.Unlock()

	for _, l := range links {
		_ = l.Close()
	}
	if err := m.StopScan(); err != nil {
		m.logger.Printf("BTManager: error stopping scan: %v", err)
	}
	m.cancel()
	m.wg.Wait()
	m.logger.Println("BTManager: shutdown complete")
}
