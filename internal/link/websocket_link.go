package link

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
)

// Relay message tags. Each binary websocket message is one tag byte followed by the raw payload.
const (
	TagMonitor byte = 0
	TagRx      byte = 1
	TagTx      byte = 2
)

const defaultHandshakeTimeout = 10 * time.Second

// EncodeRelayMessage prefixes payload with its tag
func EncodeRelayMessage(tag byte, payload []byte) []byte {
	msg := make([]byte, 1+len(payload))
	msg[0] = tag
	copy(msg[1:], payload)
	return msg
}

// DecodeRelayMessage splits a relay message. Empty messages return ok == false.
func DecodeRelayMessage(msg []byte) (tag byte, payload []byte, ok bool) {
	if len(msg) < 1 {
		return 0, nil, false
	}
	return msg[0], msg[1:], true
}

// WebSocketConfig describes how to reach a relay
type WebSocketConfig struct {
	URL              string
	SkipTLSVerify    bool
	HandshakeTimeout time.Duration
}

// WebSocketLink reaches a machine through a relay that forwards frames over binary
// websocket messages
type WebSocketLink struct {
	logger *log.Logger
	url    string
	conn   *websocket.Conn

	writeMu   sync.Mutex
	started   atomic.Bool
	closed    atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Link = (*WebSocketLink)(nil)

// DialWebSocket connects to the relay at config.URL, which must use ws:// or wss://
func DialWebSocket(ctx context.Context, logger *log.Logger, config WebSocketConfig) (*WebSocketLink, error) {
	if logger == nil {
		panic("WebSocketLink: logger cannot be nil")
	}
	u, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported relay URL scheme %q (use ws:// or wss://)", u.Scheme)
	}

	timeout := config.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: config.SkipTLSVerify}
	}

	conn, resp, err := dialer.DialContext(ctx, config.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("relay connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("relay connection failed: %w", err)
	}
	logger.Printf("WebSocketLink: connected to %s", config.URL)

	return &WebSocketLink{
		logger: logger,
		url:    config.URL,
		conn:   conn,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

func (w *WebSocketLink) Name() string {
	return "relay " + w.url
}

func (w *WebSocketLink) Start(ctx context.Context, handler FrameHandler) error {
	if handler == nil {
		panic("WebSocketLink: handler cannot be nil")
	}
	if w.closed.Load() {
		return ErrClosed
	}
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("WebSocketLink: already started")
	}

	go_func_utils.SafeGoWait(w.logger, &w.wg, "WebSocketLink reader", func() {
		defer close(w.done)
		w.readLoop(handler)
	})
	go_func_utils.SafeGoWait(w.logger, &w.wg, "WebSocketLink watcher", func() {
		select {
		case <-ctx.Done():
			w.shutdown()
		case <-w.stop:
		case <-w.done:
		}
	})
	return nil
}

func (w *WebSocketLink) readLoop(handler FrameHandler) {
	for {
		messageType, msg, err := w.conn.ReadMessage()
		if err != nil {
			if !w.closed.Load() {
				w.logger.Printf("WebSocketLink: read failed: %v", err)
			}
			w.closed.Store(true)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		tag, payload, ok := DecodeRelayMessage(msg)
		if !ok {
			continue
		}
		switch tag {
		case TagMonitor:
			handler(Frame{Source: SourceMonitor, Data: payload, At: time.Now()})
		case TagRx:
			handler(Frame{Source: SourceRx, Data: payload, At: time.Now()})
		}
	}
}

func (w *WebSocketLink) Send(data []byte) error {
	if !w.started.Load() {
		return ErrNotStarted
	}
	if w.closed.Load() {
		return ErrClosed
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, EncodeRelayMessage(TagTx, data)); err != nil {
		return fmt.Errorf("relay write failed: %w", err)
	}
	return nil
}

func (w *WebSocketLink) Done() <-chan struct{} {
	return w.done
}

func (w *WebSocketLink) shutdown() {
	w.closeOnce.Do(func() {
		w.closed.Store(true)
		close(w.stop)

		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.writeMu.Unlock()

		if err := w.conn.Close(); err != nil {
			w.logger.Printf("WebSocketLink: close failed: %v", err)
		}
		if w.started.CompareAndSwap(false, true) {
			close(w.done)
		}
	})
}

// Close disconnects and waits for the reader to exit
func (w *WebSocketLink) Close() error {
	w.shutdown()
	w.wg.Wait()
	return nil
}
