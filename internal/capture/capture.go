// Package capture records raw machine frames to a file and replays them as a link.
//
// A capture file is a CBOR sequence: one Header followed by one Record per frame.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/lowaak/vitruvian-monitor/internal/link"
	"github.com/lowaak/vitruvian-monitor/internal/protocol"
)

// FormatVersion is written to every header
const FormatVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported capture version")

// Header opens a capture file
type Header struct {
	Version         int    `cbor:"1,keyasint"`
	SessionID       string `cbor:"2,keyasint"`
	Framing         string `cbor:"3,keyasint"`
	StartedUnixNano int64  `cbor:"4,keyasint"`
	Device          string `cbor:"5,keyasint,omitempty"`
}

func (h Header) Started() time.Time {
	return time.Unix(0, h.StartedUnixNano)
}

// FramingValue parses Framing, defaulting to opcode framing
func (h Header) FramingValue() protocol.Framing {
	if f, ok := protocol.ParseFraming(h.Framing); ok {
		return f
	}
	return protocol.FramingOpcode
}

// Record is one frame, stamped relative to the header's start time
type Record struct {
	Offset time.Duration `cbor:"1,keyasint"`
	Source uint8         `cbor:"2,keyasint"`
	Data   []byte        `cbor:"3,keyasint"`
}

func (r Record) frame(started time.Time) link.Frame {
	return link.Frame{Source: link.Source(r.Source), Data: r.Data, At: started.Add(r.Offset)}
}

// NewHeader starts a header for a fresh capture with a new session id
func NewHeader(framing protocol.Framing, device string, started time.Time) Header {
	return Header{
		Version:         FormatVersion,
		SessionID:       uuid.NewString(),
		Framing:         framing.String(),
		StartedUnixNano: started.UnixNano(),
		Device:          device,
	}
}

// Recorder appends frames to a capture. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	buf     *bufio.Writer
	closer  io.Closer
	enc     *cbor.Encoder
	header  Header
	started time.Time
	count   int
}

// NewRecorder writes header to w and returns a recorder appending to it
func NewRecorder(w io.Writer, header Header) (*Recorder, error) {
	if header.Version == 0 {
		header.Version = FormatVersion
	}
	if header.SessionID == "" {
		header.SessionID = uuid.NewString()
	}
	buf := bufio.NewWriter(w)
	r := &Recorder{
		buf:     buf,
		enc:     cbor.NewEncoder(buf),
		header:  header,
		started: header.Started(),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	if err := r.enc.Encode(header); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return r, nil
}

// CreateRecorder creates (or truncates) path and writes header to it
func CreateRecorder(path string, header Header) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	r, err := NewRecorder(f, header)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Recorder) Header() Header {
	return r.header
}

// Record appends one frame. Frames stamped before the header's start get offset 0.
func (r *Recorder) Record(frame link.Frame) error {
	offset := frame.At.Sub(r.started)
	if offset < 0 {
		offset = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enc.Encode(Record{Offset: offset, Source: uint8(frame.Source), Data: frame.Data}); err != nil {
		return fmt.Errorf("write capture record: %w", err)
	}
	r.count++
	return nil
}

// Count returns how many frames were recorded
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close flushes buffered records and closes the underlying writer if it is a Closer
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.buf.Flush()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	return err
}
