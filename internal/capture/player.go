package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
	"github.com/lowaak/vitruvian-monitor/internal/link"
)

// Player replays a capture as a link. Frames keep their recorded timestamps.
// Commands sent to it are logged and discarded.
type Player struct {
	logger *log.Logger
	dec    *cbor.Decoder
	closer io.Closer
	header Header
	paced  bool

	mu      sync.Mutex
	err     error
	played  int
	ignored int

	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ link.Link = (*Player)(nil)

// NewPlayer reads the header from r. With paced, frames are delivered at their recorded
// spacing; otherwise as fast as the handler accepts them.
func NewPlayer(logger *log.Logger, r io.Reader, paced bool) (*Player, error) {
	if logger == nil {
		panic("Player: logger cannot be nil")
	}
	dec := cbor.NewDecoder(bufio.NewReader(r))
	var header Header
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
	p := &Player{
		logger: logger,
		dec:    dec,
		header: header,
		paced:  paced,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		p.closer = c
	}
	return p, nil
}

// OpenPlayer opens a capture file
func OpenPlayer(logger *log.Logger, path string, paced bool) (*Player, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	p, err := NewPlayer(logger, f, paced)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return p, nil
}

func (p *Player) Header() Header {
	return p.header
}

func (p *Player) Name() string {
	return "capture " + p.header.SessionID
}

func (p *Player) Start(ctx context.Context, handler link.FrameHandler) error {
	if handler == nil {
		panic("Player: handler cannot be nil")
	}
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("Player: already started")
	}
	go_func_utils.SafeGoWait(p.logger, &p.wg, "Player", func() {
		defer close(p.done)
		p.play(ctx, handler)
	})
	return nil
}

func (p *Player) play(ctx context.Context, handler link.FrameHandler) {
	started := p.header.Started()
	wallStart := time.Now()

	for {
		var rec Record
		if err := p.dec.Decode(&rec); err != nil {
			if !errors.Is(err, io.EOF) {
				p.setErr(fmt.Errorf("read capture record %d: %w", p.Played()+1, err))
				p.logger.Printf("Player: %v", p.Err())
			}
			p.logger.Printf("Player: replay finished after %d frames", p.Played())
			return
		}

		if p.paced {
			wait := time.Until(wallStart.Add(rec.Offset))
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-p.stop:
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		handler(rec.frame(started))
		p.mu.Lock()
		p.played++
		p.mu.Unlock()
	}
}

func (p *Player) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Err returns the decode error that ended the replay early, if any
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Played returns how many frames were delivered
func (p *Player) Played() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played
}

func (p *Player) Send(data []byte) error {
	if !p.started.Load() {
		return link.ErrNotStarted
	}
	p.mu.Lock()
	p.ignored++
	p.mu.Unlock()
	p.logger.Printf("Player: ignoring command % x during replay", data)
	return nil
}

func (p *Player) Done() <-chan struct{} {
	return p.done
}

func (p *Player) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.stop)
		if p.started.CompareAndSwap(false, true) {
			close(p.done)
		}
	})
	p.wg.Wait()
	if p.closer != nil {
		err = p.closer.Close()
		p.closer = nil
	}
	return err
}
