package protocol

import "encoding/binary"

// RepNotification carries the machine's four wrapping 8-bit rep counters
type RepNotification struct {
	TopCounter      uint8 // increments at the top of each concentric
	CompleteCounter uint8 // increments at the bottom of each eccentric
	RepsRomCount    uint8 // machine warmup tally
	RepsSetCount    uint8 // machine working tally
}

// MetricsPacket is the opcode 0x01 frame from the RX characteristic
type MetricsPacket struct {
	PositionA int
	PositionB int
	LoadA     float64
	LoadB     float64
	VelocityA float64
	VelocityB float64
}

// RxKind identifies what an RX frame decoded to
type RxKind int

const (
	RxRepNotification RxKind = iota
	RxMetrics
)

// RxFrame is a decoded RX notification. Only the field matching Kind is set.
type RxFrame struct {
	Kind    RxKind
	Reps    RepNotification
	Metrics MetricsPacket
}

// DecodeRepNotification parses a rep notification using the given framing.
// Short frames, and opcode frames not tagged 0x02, return ok == false.
func DecodeRepNotification(buf []byte, framing Framing) (RepNotification, bool) {
	offset := 0
	if framing == FramingOpcode {
		if len(buf) < 1 || buf[0] != OpCodeRepNotification {
			return RepNotification{}, false
		}
		offset = 1
	}
	if len(buf) < offset+RepCounterFieldCount {
		return RepNotification{}, false
	}
	return RepNotification{
		TopCounter:      buf[offset],
		CompleteCounter: buf[offset+1],
		RepsRomCount:    buf[offset+2],
		RepsSetCount:    buf[offset+3],
	}, true
}

// EncodeRepNotification builds the wire form of a rep notification for the given framing
func EncodeRepNotification(n RepNotification, framing Framing) []byte {
	counters := []byte{n.TopCounter, n.CompleteCounter, n.RepsRomCount, n.RepsSetCount}
	if framing == FramingLegacy {
		return counters
	}
	return append([]byte{OpCodeRepNotification}, counters...)
}

// DecodeMetrics parses an opcode 0x01 metrics frame.
// Loads are in tenths of a kg and velocities are offset by 32768.
func DecodeMetrics(buf []byte) (MetricsPacket, bool) {
	if len(buf) < MetricsFrameMinSize || buf[0] != OpCodeMetrics {
		return MetricsPacket{}, false
	}
	u16 := func(offset int) int {
		return int(binary.LittleEndian.Uint16(buf[offset : offset+2]))
	}
	return MetricsPacket{
		PositionA: u16(2),
		PositionB: u16(4),
		LoadA:     float64(u16(6)) / 10.0,
		LoadB:     float64(u16(8)) / 10.0,
		VelocityA: float64(u16(10) - 32768),
		VelocityB: float64(u16(12) - 32768),
	}, true
}

// DecodeRx is the single entry point for RX notifications.
// Under FramingLegacy every frame is a rep notification.
func DecodeRx(buf []byte, framing Framing) (RxFrame, bool) {
	if framing == FramingLegacy {
		reps, ok := DecodeRepNotification(buf, framing)
		return RxFrame{Kind: RxRepNotification, Reps: reps}, ok
	}
	if len(buf) < 2 {
		return RxFrame{}, false
	}
	switch buf[0] {
	case OpCodeMetrics:
		metrics, ok := DecodeMetrics(buf)
		return RxFrame{Kind: RxMetrics, Metrics: metrics}, ok
	case OpCodeRepNotification:
		reps, ok := DecodeRepNotification(buf, framing)
		return RxFrame{Kind: RxRepNotification, Reps: reps}, ok
	default:
		return RxFrame{}, false
	}
}
