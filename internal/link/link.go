// Package link moves raw machine frames between a transport and the session pipeline.
package link

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by Send after Close or after the transport went away
	ErrClosed = errors.New("link closed")
	// ErrNotStarted is returned by Send before Start
	ErrNotStarted = errors.New("link not started")
)

// Source identifies the characteristic a frame arrived on
type Source uint8

const (
	SourceMonitor Source = iota
	SourceRx
)

func (s Source) String() string {
	switch s {
	case SourceMonitor:
		return "monitor"
	case SourceRx:
		return "rx"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Frame is one raw payload read from the machine
type Frame struct {
	Source Source
	Data   []byte
	At     time.Time
}

// FrameHandler receives frames from a link's reader goroutines. It must not block for long;
// the session only queues the frame.
type FrameHandler func(Frame)

// Link is a connection to one machine, real or simulated
type Link interface {
	// Name describes the peer for logs and the dashboard
	Name() string
	// Start begins delivering frames to handler until ctx ends or Close is called
	Start(ctx context.Context, handler FrameHandler) error
	// Send writes one command to the TX characteristic
	Send(data []byte) error
	// Done is closed once the link stops delivering frames
	Done() <-chan struct{}
	Close() error
}
