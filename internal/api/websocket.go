package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsMaxClients   = 64
	wsMaxPerIP     = 4
)

// FrameFeed fans published frames out to websocket spectators. Slow or dead
// clients are dropped rather than back-pressuring the simulation, and a
// per-IP connection cap keeps one spectator from hoarding the global slots.
type FrameFeed struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]string // conn -> client IP
	ipLimits *WebSocketRateLimiter
	upgrader websocket.Upgrader
}

// NewFrameFeed creates an empty feed.
func NewFrameFeed() *FrameFeed {
	return &FrameFeed{
		clients:  make(map[*websocket.Conn]string),
		ipLimits: NewWebSocketRateLimiter(wsMaxPerIP),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the connection and registers the spectator.
func (f *FrameFeed) HandleWS(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if len(f.clients) >= wsMaxClients {
		f.mu.Unlock()
		RecordConnectionRejected("ws_limit")
		http.Error(w, "spectator limit reached", http.StatusServiceUnavailable)
		return
	}
	f.mu.Unlock()

	ip := GetClientIP(r)
	if !f.ipLimits.Allow(ip) {
		RecordConnectionRejected("ws_limit")
		http.Error(w, "too many connections from this address", http.StatusTooManyRequests)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.ipLimits.Release(ip)
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	f.mu.Lock()
	f.clients[conn] = ip
	f.mu.Unlock()

	// Drain (and discard) client messages so pings are answered and
	// closed connections are noticed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				f.remove(conn)
				return
			}
		}
	}()
}

// Broadcast sends one frame payload to every spectator.
func (f *FrameFeed) Broadcast(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, ip := range f.clients {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			f.ipLimits.Release(ip)
			delete(f.clients, conn)
		}
	}
}

// Close disconnects every spectator.
func (f *FrameFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for conn, ip := range f.clients {
		conn.Close()
		f.ipLimits.Release(ip)
		delete(f.clients, conn)
	}
}

// ClientCount returns the number of connected spectators.
func (f *FrameFeed) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *FrameFeed) remove(conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ip, ok := f.clients[conn]; ok {
		f.ipLimits.Release(ip)
	}
	conn.Close()
	delete(f.clients, conn)
}
