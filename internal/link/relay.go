package link

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lowaak/vitruvian-monitor/internal/go_func_utils"
)

const (
	relayClientBuffer = 256
	relayWriteTimeout = 5 * time.Second
)

type relayClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Relay serves one upstream link to any number of websocket clients. Frames fan out to
// every client; tx messages from any client are written upstream.
type Relay struct {
	logger   *log.Logger
	upstream Link
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*relayClient]struct{}
	dropped uint64
}

func NewRelay(logger *log.Logger, upstream Link) *Relay {
	if logger == nil {
		panic("Relay: logger cannot be nil")
	}
	return &Relay{
		logger:   logger,
		upstream: upstream,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*relayClient]struct{}),
	}
}

// Run starts the upstream link and blocks until ctx ends or the upstream stops.
// Connected clients are disconnected on return.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.upstream.Start(ctx, r.broadcast); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-r.upstream.Done():
		r.logger.Printf("Relay: upstream %s stopped", r.upstream.Name())
	}

	r.mu.Lock()
	for c := range r.clients {
		_ = c.conn.Close()
	}
	r.mu.Unlock()
	return nil
}

func (r *Relay) broadcast(frame Frame) {
	tag := TagMonitor
	if frame.Source == SourceRx {
		tag = TagRx
	}
	msg := EncodeRelayMessage(tag, frame.Data)

	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		select {
		case c.send <- msg:
		default:
			r.dropped++
		}
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects
func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("Relay: upgrade failed: %v", err)
		return
	}
	client := &relayClient{conn: conn, send: make(chan []byte, relayClientBuffer)}

	r.mu.Lock()
	r.clients[client] = struct{}{}
	r.mu.Unlock()
	r.logger.Printf("Relay: client %s connected", req.RemoteAddr)

	var wg sync.WaitGroup
	go_func_utils.SafeGoWait(r.logger, &wg, "Relay writer", func() {
		for msg := range client.send {
			_ = conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				_ = conn.Close()
				for range client.send {
				}
				return
			}
		}
	})

	r.readClient(conn)

	r.mu.Lock()
	delete(r.clients, client)
	r.mu.Unlock()
	close(client.send)
	wg.Wait()
	_ = conn.Close()
	r.logger.Printf("Relay: client %s disconnected", req.RemoteAddr)
}

func (r *Relay) readClient(conn *websocket.Conn) {
	for {
		messageType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		tag, payload, ok := DecodeRelayMessage(msg)
		if !ok || tag != TagTx {
			continue
		}
		if err := r.upstream.Send(payload); err != nil {
			r.logger.Printf("Relay: upstream send failed: %v", err)
		}
	}
}

// ClientCount returns the number of connected clients
func (r *Relay) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Dropped returns how many frames were skipped for slow clients
func (r *Relay) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
