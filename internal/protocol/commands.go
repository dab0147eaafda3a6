package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidCommand is returned when command parameters cannot be encoded
	ErrInvalidCommand = errors.New("invalid command")
	// ErrUnsupportedEccentricLoad is returned for echo eccentric loads whose wire encoding is unknown
	ErrUnsupportedEccentricLoad = errors.New("unsupported echo eccentric load")
)

// Command is an outbound frame written to the TX characteristic
type Command interface {
	Encode() ([]byte, error)
	Describe() string
}

// ProgramMode is the resistance profile for a program command
type ProgramMode uint8

const (
	ModeOldSchool     ProgramMode = 0
	ModePump          ProgramMode = 2
	ModeTUT           ProgramMode = 3
	ModeTUTBeast      ProgramMode = 4
	ModeEccentricOnly ProgramMode = 6
)

// ProgramModeInfo contains display information for a program mode
type ProgramModeInfo struct {
	Mode        ProgramMode
	Name        string
	DisplayName string
}

// AllProgramModes lists the modes the machine accepts
var AllProgramModes = []ProgramModeInfo{
	{Mode: ModeOldSchool, Name: "old_school", DisplayName: "Old School"},
	{Mode: ModePump, Name: "pump", DisplayName: "Pump"},
	{Mode: ModeTUT, Name: "tut", DisplayName: "TUT"},
	{Mode: ModeTUTBeast, Name: "tut_beast", DisplayName: "TUT Beast"},
	{Mode: ModeEccentricOnly, Name: "eccentric_only", DisplayName: "Eccentric Only"},
}

// GetProgramModeInfo returns the info for a mode
func GetProgramModeInfo(mode ProgramMode) (ProgramModeInfo, bool) {
	for _, info := range AllProgramModes {
		if info.Mode == mode {
			return info, true
		}
	}
	return ProgramModeInfo{}, false
}

// ParseProgramMode returns the mode for a config name
func ParseProgramMode(name string) (ProgramMode, bool) {
	for _, info := range AllProgramModes {
		if info.Name == name {
			return info.Mode, true
		}
	}
	return 0, false
}

// EchoLevel is the difficulty of an echo set
type EchoLevel uint8

const (
	EchoHard EchoLevel = iota
	EchoHarder
	EchoHardest
	EchoEpic
)

var echoLevelNames = []string{"hard", "harder", "hardest", "epic"}

// ParseEchoLevel returns the level for a config name
func ParseEchoLevel(name string) (EchoLevel, bool) {
	for i, n := range echoLevelNames {
		if n == name {
			return EchoLevel(i), true
		}
	}
	return 0, false
}

func (l EchoLevel) String() string {
	if int(l) < len(echoLevelNames) {
		return echoLevelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// DefaultEchoEccentricLoad is what the machine applies when the command carries no load field
const DefaultEchoEccentricLoad = 100

// EchoEccentricLoads are the eccentric loads EchoCommand can encode. 0 selects the default.
var EchoEccentricLoads = []int{0, DefaultEchoEccentricLoad}

// MaxWeightPerCableKg is the largest weight that fits the u16 x100 field
const MaxWeightPerCableKg = float64(math.MaxUint16) / 100.0

// ProgramCommand sets a program mode and weight per cable
type ProgramCommand struct {
	Mode             ProgramMode
	WeightPerCableKg float64
}

// Encode builds the 25-byte regular command:
// [0] 0x4F | [1] mode | [2:4] weight x100 (u16 LE) | zero padding
func (c ProgramCommand) Encode() ([]byte, error) {
	if _, ok := GetProgramModeInfo(c.Mode); !ok {
		return nil, fmt.Errorf("%w: unknown program mode %d", ErrInvalidCommand, c.Mode)
	}
	if math.IsNaN(c.WeightPerCableKg) || math.IsInf(c.WeightPerCableKg, 0) || c.WeightPerCableKg < 0 {
		return nil, fmt.Errorf("%w: weight %v kg", ErrInvalidCommand, c.WeightPerCableKg)
	}
	scaled := math.Round(c.WeightPerCableKg * 100)
	if scaled > math.MaxUint16 {
		return nil, fmt.Errorf("%w: weight %.2f kg exceeds %.2f kg", ErrInvalidCommand, c.WeightPerCableKg, MaxWeightPerCableKg)
	}

	buf := make([]byte, ProgramCommandSize)
	buf[0] = OpCodeRegularCommand
	buf[1] = byte(c.Mode)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(scaled))
	return buf, nil
}

func (c ProgramCommand) Describe() string {
	info, ok := GetProgramModeInfo(c.Mode)
	name := fmt.Sprintf("mode(%d)", c.Mode)
	if ok {
		name = info.DisplayName
	}
	return fmt.Sprintf("Program %s %.2f kg/cable", name, c.WeightPerCableKg)
}

// EchoCommand starts an echo set.
// Only the level byte is verified; eccentric loads other than the default are refused.
// A zero EccentricLoadPercent means the default.
type EchoCommand struct {
	Level                EchoLevel
	EccentricLoadPercent int
}

// Encode builds the 29-byte echo command: [0] 0x4E | [1] level | zero padding
func (c EchoCommand) Encode() ([]byte, error) {
	if c.Level > EchoEpic {
		return nil, fmt.Errorf("%w: echo level %d", ErrInvalidCommand, c.Level)
	}
	if c.eccentricLoad() != DefaultEchoEccentricLoad {
		return nil, fmt.Errorf("%w: %d%%", ErrUnsupportedEccentricLoad, c.EccentricLoadPercent)
	}

	buf := make([]byte, EchoCommandSize)
	buf[0] = OpCodeEchoCommand
	buf[1] = byte(c.Level)
	return buf, nil
}

func (c EchoCommand) Describe() string {
	return fmt.Sprintf("Echo %s eccentric %d%%", c.Level, c.eccentricLoad())
}

func (c EchoCommand) eccentricLoad() int {
	if c.EccentricLoadPercent == 0 {
		return DefaultEchoEccentricLoad
	}
	return c.EccentricLoadPercent
}

// StopCommand ends the current set
type StopCommand struct{}

func (StopCommand) Encode() ([]byte, error) {
	return []byte{OpCodeStopCommand}, nil
}

func (StopCommand) Describe() string { return "Stop" }

// InitCommand is written once after connecting; the machine answers with 0x0B
type InitCommand struct{}

func (InitCommand) Encode() ([]byte, error) {
	return []byte{OpCodeInit}, nil
}

func (InitCommand) Describe() string { return "Init" }
