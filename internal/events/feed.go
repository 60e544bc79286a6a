package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// FeedConfig holds tunable parameters for the event feed server.
type FeedConfig struct {
	// WriteTimeout bounds each outbound frame write.
	WriteTimeout time.Duration

	// PingInterval is how often idle connections are pinged.
	PingInterval time.Duration

	// I/O buffer sizes for each upgraded WebSocket connection.
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultFeedConfig returns defaults tuned for reconciliation consumers.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		WriteTimeout:    5 * time.Second,
		PingInterval:    30 * time.Second,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// feedFrame is the JSON envelope sent to feed subscribers.
type feedFrame struct {
	Kind  Kind  `json:"kind"`
	Event Event `json:"event"`
}

// Feed serves the unified event stream over WebSocket. Each connected
// client gets every event in emission order; slow clients are
// disconnected rather than allowed to stall the hub.
type Feed struct {
	cfg      FeedConfig
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]chan []byte
}

// NewFeed creates a Feed that serves the events passed to Run once Run
// is started.
func NewFeed(cfg FeedConfig) *Feed {
	return &Feed{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		conns: make(map[*websocket.Conn]chan []byte),
	}
}

// ServeHTTP upgrades the request and registers the connection for event
// delivery until the client disconnects.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feed: upgrade: %v", err)
		return
	}

	outbox := make(chan []byte, 256)
	f.mu.Lock()
	f.conns[conn] = outbox
	f.mu.Unlock()

	go f.writeLoop(conn, outbox)
	f.readLoop(conn)
}

// Run drains the feed channel and fans frames out to every connection.
// It blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context, feed <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			f.closeAll()
			return
		case ev, ok := <-feed:
			if !ok {
				f.closeAll()
				return
			}
			frame, err := json.Marshal(feedFrame{Kind: ev.Kind(), Event: ev})
			if err != nil {
				log.Printf("feed: marshal %s: %v", ev.Kind(), err)
				continue
			}
			f.mu.Lock()
			for conn, outbox := range f.conns {
				select {
				case outbox <- frame:
				default:
					// Slow consumer: cut it loose instead of
					// backing up the hub.
					delete(f.conns, conn)
					close(outbox)
				}
			}
			f.mu.Unlock()
		}
	}
}

// writeLoop pushes frames and keepalive pings to one connection.
func (f *Feed) writeLoop(conn *websocket.Conn, outbox <-chan []byte) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case frame, ok := <-outbox:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer"),
					time.Now().Add(f.cfg.WriteTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				f.drop(conn)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.drop(conn)
				return
			}
		}
	}
}

// readLoop discards inbound frames; the feed is one-way. It returns when
// the peer disconnects, unregistering the connection.
func (f *Feed) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			f.drop(conn)
			return
		}
	}
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	if outbox, ok := f.conns[conn]; ok {
		delete(f.conns, conn)
		close(outbox)
	}
	f.mu.Unlock()
	conn.Close()
}

func (f *Feed) closeAll() {
	f.mu.Lock()
	for conn, outbox := range f.conns {
		delete(f.conns, conn)
		close(outbox)
		conn.Close()
	}
	f.mu.Unlock()
}
