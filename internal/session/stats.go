package session

import (
	"fmt"
	"strings"
	"time"
)

// Stats counts what the pipeline saw. It is owned by the pipeline goroutine;
// listeners receive copies.
type Stats struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	FramesReceived   uint64
	MonitorFrames    uint64
	RxFrames         uint64
	Decoded          uint64
	DroppedShort     uint64 // monitor frames under 16 bytes
	UnknownRx        uint64 // RX frames that decode to nothing
	SpikesRejected   uint64 // per cable
	RepNotifications uint64
	CommandsSent     uint64
	CommandErrors    uint64

	FrameRate float64 // frames/sec
	ErrorRate float64 // dropped+unknown+spikes per sec
}

func NewStats(now time.Time) Stats {
	return Stats{StartTime: now, LastUpdateTime: now}
}

// CalculateRates refreshes the rates against now
func (s *Stats) CalculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed <= 0 {
		return
	}
	s.FrameRate = float64(s.FramesReceived) / elapsed
	s.ErrorRate = float64(s.DroppedShort+s.UnknownRx+s.SpikesRejected) / elapsed
}

func (s Stats) String() string {
	var b strings.Builder
	elapsed := s.LastUpdateTime.Sub(s.StartTime)
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	fmt.Fprintf(&b, "Frames:          %8d (monitor %d, rx %d)\n", s.FramesReceived, s.MonitorFrames, s.RxFrames)
	fmt.Fprintf(&b, "Decoded:         %8d\n", s.Decoded)
	if s.DroppedShort > 0 {
		fmt.Fprintf(&b, "Short Frames:    %8d\n", s.DroppedShort)
	}
	if s.UnknownRx > 0 {
		fmt.Fprintf(&b, "Unknown RX:      %8d\n", s.UnknownRx)
	}
	if s.SpikesRejected > 0 {
		fmt.Fprintf(&b, "Spikes Rejected: %8d\n", s.SpikesRejected)
	}
	fmt.Fprintf(&b, "Rep Frames:      %8d\n", s.RepNotifications)
	fmt.Fprintf(&b, "Commands:        %8d sent, %d failed\n", s.CommandsSent, s.CommandErrors)
	fmt.Fprintf(&b, "Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	fmt.Fprintf(&b, "Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	b.WriteString("================================\n")
	return b.String()
}

// Reset zeroes every counter and restarts the rate window at now
func (s *Stats) Reset(now time.Time) {
	*s = NewStats(now)
}
