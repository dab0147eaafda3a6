package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRepNotification(t *testing.T) {
	tests := []struct {
		name    string
		buf     []byte
		framing Framing
		want    RepNotification
		ok      bool
	}{
		{
			name:    "opcode framing",
			buf:     []byte{0x02, 5, 4, 3, 2},
			framing: FramingOpcode,
			want:    RepNotification{TopCounter: 5, CompleteCounter: 4, RepsRomCount: 3, RepsSetCount: 2},
			ok:      true,
		},
		{
			name:    "opcode framing ignores trailing bytes",
			buf:     []byte{0x02, 255, 254, 1, 0, 0xAA, 0xBB},
			framing: FramingOpcode,
			want:    RepNotification{TopCounter: 255, CompleteCounter: 254, RepsRomCount: 1, RepsSetCount: 0},
			ok:      true,
		},
		{
			name:    "opcode framing wrong opcode",
			buf:     []byte{0x01, 5, 4, 3, 2},
			framing: FramingOpcode,
			ok:      false,
		},
		{
			name:    "opcode framing short",
			buf:     []byte{0x02, 5, 4, 3},
			framing: FramingOpcode,
			ok:      false,
		},
		{
			name:    "legacy framing",
			buf:     []byte{9, 8, 3, 1},
			framing: FramingLegacy,
			want:    RepNotification{TopCounter: 9, CompleteCounter: 8, RepsRomCount: 3, RepsSetCount: 1},
			ok:      true,
		},
		{
			name:    "legacy framing short",
			buf:     []byte{9, 8, 3},
			framing: FramingLegacy,
			ok:      false,
		},
		{
			name:    "empty",
			buf:     nil,
			framing: FramingOpcode,
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeRepNotification(tt.buf, tt.framing)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestEncodeRepNotification(t *testing.T) {
	n := RepNotification{TopCounter: 1, CompleteCounter: 2, RepsRomCount: 3, RepsSetCount: 4}

	assert.Equal(t, []byte{0x02, 1, 2, 3, 4}, EncodeRepNotification(n, FramingOpcode))
	assert.Equal(t, []byte{1, 2, 3, 4}, EncodeRepNotification(n, FramingLegacy))

	for _, framing := range []Framing{FramingOpcode, FramingLegacy} {
		got, ok := DecodeRepNotification(EncodeRepNotification(n, framing), framing)
		require.True(t, ok)
		assert.Equal(t, n, got)
	}
}

func TestDecodeMetrics(t *testing.T) {
	buf := make([]byte, 16)
	buf[0] = OpCodeMetrics
	buf[2], buf[3] = 0x2C, 0x01 // posA 300
	buf[4], buf[5] = 0x90, 0x01 // posB 400
	buf[6], buf[7] = 0xE1, 0x00 // loadA 225 -> 22.5
	buf[8], buf[9] = 0x64, 0x00 // loadB 100 -> 10.0
	buf[10], buf[11] = 0x0A, 0x80 // velA 32778 -> 10
	buf[12], buf[13] = 0xF6, 0x7F // velB 32758 -> -10

	m, ok := DecodeMetrics(buf)
	require.True(t, ok)
	assert.Equal(t, 300, m.PositionA)
	assert.Equal(t, 400, m.PositionB)
	assert.InDelta(t, 22.5, m.LoadA, 1e-9)
	assert.InDelta(t, 10.0, m.LoadB, 1e-9)
	assert.InDelta(t, 10.0, m.VelocityA, 1e-9)
	assert.InDelta(t, -10.0, m.VelocityB, 1e-9)

	_, ok = DecodeMetrics(buf[:15])
	assert.False(t, ok)
}

func TestDecodeRx_Dispatch(t *testing.T) {
	metrics := make([]byte, 16)
	metrics[0] = OpCodeMetrics

	frame, ok := DecodeRx(metrics, FramingOpcode)
	require.True(t, ok)
	assert.Equal(t, RxMetrics, frame.Kind)

	frame, ok = DecodeRx([]byte{0x02, 1, 1, 0, 0}, FramingOpcode)
	require.True(t, ok)
	assert.Equal(t, RxRepNotification, frame.Kind)
	assert.Equal(t, uint8(1), frame.Reps.TopCounter)

	_, ok = DecodeRx([]byte{0x0B, 0x00}, FramingOpcode)
	assert.False(t, ok, "init response is not a telemetry frame")

	_, ok = DecodeRx([]byte{0x02}, FramingOpcode)
	assert.False(t, ok)

	// Legacy framing treats every frame as bare counters, even when byte 0 looks like an opcode
	frame, ok = DecodeRx([]byte{0x01, 7, 2, 0}, FramingLegacy)
	require.True(t, ok)
	assert.Equal(t, RxRepNotification, frame.Kind)
	assert.Equal(t, RepNotification{TopCounter: 1, CompleteCounter: 7, RepsRomCount: 2, RepsSetCount: 0}, frame.Reps)
}
