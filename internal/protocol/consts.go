package protocol

import "strings"

// Nordic UART Service layout used by the machine
const (
	ServiceUUIDNordicUART = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	CharUUIDTx            = "6e400002-b5a3-f393-e0a9-e50e24dcca9e" // write without response
	CharUUIDRx            = "6e400003-b5a3-f393-e0a9-e50e24dcca9e" // notify
	CharUUIDMonitor       = "90e991a6-c548-44ed-969b-eb541014eae3" // read/notify, polled
)

// Advertised local name prefixes for V-Form ("Vee_") and Trainer+ ("VIT") machines
var DeviceNamePrefixes = []string{"Vee_", "VIT"}

// IsMachineName reports whether an advertised name belongs to a supported machine
func IsMachineName(name string) bool {
	for _, prefix := range DeviceNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Inbound opcodes on the RX characteristic
const (
	OpCodeMetrics         byte = 0x01
	OpCodeRepNotification byte = 0x02
	OpCodeInitResponse    byte = 0x0B
)

// Outbound opcodes on the TX characteristic
const (
	OpCodeInit           byte = 0x0A
	OpCodeEchoCommand    byte = 0x4E
	OpCodeRegularCommand byte = 0x4F
	OpCodeStopCommand    byte = 0x50
)

// Frame sizes
const (
	MonitorFrameMinSize       = 16
	MonitorFrameWithStatusLen = 18
	MetricsFrameMinSize       = 16
	RepCounterFieldCount      = 4
	ProgramCommandSize        = 25
	EchoCommandSize           = 29
)

// Framing selects how rep notifications are laid out on the wire
type Framing int

const (
	// FramingOpcode is the newer path: byte 0 carries the opcode, counters follow
	FramingOpcode Framing = iota
	// FramingLegacy carries the four counters with no opcode prefix
	FramingLegacy
)

// FramingInfo contains display information for a framing variant
type FramingInfo struct {
	Framing     Framing
	Name        string
	Description string
}

// AllFramings lists the supported framing variants
var AllFramings = []FramingInfo{
	{Framing: FramingOpcode, Name: "opcode", Description: "opcode-prefixed RX frames (0x01 metrics, 0x02 reps)"},
	{Framing: FramingLegacy, Name: "legacy", Description: "bare rep counters with no opcode prefix"},
}

// ParseFraming returns the framing for a config name
func ParseFraming(name string) (Framing, bool) {
	for _, info := range AllFramings {
		if info.Name == name {
			return info.Framing, true
		}
	}
	return 0, false
}

func (f Framing) String() string {
	for _, info := range AllFramings {
		if info.Framing == f {
			return info.Name
		}
	}
	return "unknown"
}
