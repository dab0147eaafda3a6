package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// MonitorSample is one frame read from the monitor characteristic
type MonitorSample struct {
	Ticks     uint32
	PositionA int
	PositionB int
	LoadA     float64 // kg per cable
	LoadB     float64
	Status    SampleStatus
	HasStatus bool
}

// DecodeMonitor parses a monitor frame.
// Frames shorter than 16 bytes are dropped and ok is false; the caller skips the tick.
//
// Layout (u16 little-endian):
//
//	0 ticks low | 2 ticks high | 4 posA | 8 loadA/100 | 10 posB | 14 loadB/100 | 16 status (optional)
func DecodeMonitor(buf []byte) (sample MonitorSample, ok bool) {
	if len(buf) < MonitorFrameMinSize {
		return MonitorSample{}, false
	}

	ticksLo := binary.LittleEndian.Uint16(buf[0:2])
	ticksHi := binary.LittleEndian.Uint16(buf[2:4])

	sample = MonitorSample{
		Ticks:     uint32(ticksHi)<<16 | uint32(ticksLo),
		PositionA: int(binary.LittleEndian.Uint16(buf[4:6])),
		LoadA:     float64(binary.LittleEndian.Uint16(buf[8:10])) / 100.0,
		PositionB: int(binary.LittleEndian.Uint16(buf[10:12])),
		LoadB:     float64(binary.LittleEndian.Uint16(buf[14:16])) / 100.0,
	}

	if len(buf) >= MonitorFrameWithStatusLen {
		sample.Status = SampleStatus(binary.LittleEndian.Uint16(buf[16:18]))
		sample.HasStatus = true
	}

	return sample, true
}

// EncodeMonitor builds the wire form of a sample. Used by the simulator and relay tests.
// Positions and loads are truncated to the u16 field width.
func EncodeMonitor(sample MonitorSample) []byte {
	size := MonitorFrameMinSize
	if sample.HasStatus {
		size = MonitorFrameWithStatusLen
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(sample.Ticks&0xFFFF))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(sample.Ticks>>16))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(sample.PositionA))
	binary.LittleEndian.PutUint16(buf[8:10], scaleToU16(sample.LoadA, 100))
	binary.LittleEndian.PutUint16(buf[10:12], uint16(sample.PositionB))
	binary.LittleEndian.PutUint16(buf[14:16], scaleToU16(sample.LoadB, 100))
	if sample.HasStatus {
		binary.LittleEndian.PutUint16(buf[16:18], uint16(sample.Status))
	}
	return buf
}

func scaleToU16(v float64, scale float64) uint16 {
	scaled := v*scale + 0.5
	if scaled <= 0 {
		return 0
	}
	if scaled >= 0xFFFF {
		return 0xFFFF
	}
	return uint16(scaled)
}

// SampleStatus is the bitmask carried in bytes 16-17 of a monitor frame
type SampleStatus uint16

const (
	StatusRepTopReady     SampleStatus = 1 << 0
	StatusRepBottomReady  SampleStatus = 1 << 1
	StatusRomOutsideHigh  SampleStatus = 1 << 2
	StatusRomOutsideLow   SampleStatus = 1 << 3
	StatusRomUnloadActive SampleStatus = 1 << 4
	StatusSpotterActive   SampleStatus = 1 << 5
	StatusDeloadWarn      SampleStatus = 1 << 6
	StatusDeloadOccurred  SampleStatus = 1 << 15
)

var statusNames = []struct {
	flag SampleStatus
	name string
}{
	{StatusRepTopReady, "REP_TOP_READY"},
	{StatusRepBottomReady, "REP_BOTTOM_READY"},
	{StatusRomOutsideHigh, "ROM_OUTSIDE_HIGH"},
	{StatusRomOutsideLow, "ROM_OUTSIDE_LOW"},
	{StatusRomUnloadActive, "ROM_UNLOAD_ACTIVE"},
	{StatusSpotterActive, "SPOTTER_ACTIVE"},
	{StatusDeloadWarn, "DELOAD_WARN"},
	{StatusDeloadOccurred, "DELOAD_OCCURRED"},
}

// Has reports whether every bit in flag is set
func (s SampleStatus) Has(flag SampleStatus) bool {
	return s&flag == flag
}

// Flags returns the names of the set bits in declaration order
func (s SampleStatus) Flags() []string {
	flags := make([]string, 0)
	for _, entry := range statusNames {
		if s.Has(entry.flag) {
			flags = append(flags, entry.name)
		}
	}
	return flags
}

func (s SampleStatus) String() string {
	return fmt.Sprintf("0x%04x[%s]", uint16(s), strings.Join(s.Flags(), ","))
}
