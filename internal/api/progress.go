package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientSendSize = 64
)

// ProgressEvent is pushed to websocket subscribers while an analysis runs.
type ProgressEvent struct {
	RunID   string  `json:"runId"`
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Done    bool    `json:"done,omitempty"`
	Error   string  `json:"error,omitempty"`
}

type progressClient struct {
	conn *websocket.Conn
	send chan ProgressEvent
	run  string // empty subscribes to every run
}

// ProgressHub fans analysis progress out to websocket clients. Slow clients
// are dropped rather than allowed to stall an analysis.
type ProgressHub struct {
	mu       sync.RWMutex
	clients  map[*progressClient]struct{}
	upgrader websocket.Upgrader
}

// NewProgressHub creates an empty hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		clients: make(map[*progressClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tool, any origin
			},
		},
	}
}

// Clients returns the number of connected subscribers.
func (h *ProgressHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers ev to every matching subscriber without blocking.
func (h *ProgressHub) Publish(ev ProgressEvent) {
	if h == nil {
		return
	}
	var stale []*progressClient

	h.mu.RLock()
	for c := range h.clients {
		if c.run != "" && c.run != ev.RunID {
			continue
		}
		select {
		case c.send <- ev:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		slog.Debug("Dropping slow progress client", "remote", c.conn.RemoteAddr())
		h.remove(c)
	}
}

func (h *ProgressHub) remove(c *progressClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// HandleConnection upgrades GET /api/progress. The optional run query
// parameter restricts the stream to one analysis run.
func (h *ProgressHub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Failed to upgrade progress connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &progressClient{
		conn: conn,
		send: make(chan ProgressEvent, clientSendSize),
		run:  r.URL.Query().Get("run"),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	slog.Debug("Progress client connected", "remote", r.RemoteAddr, "run", c.run)

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *ProgressHub) readPump(c *progressClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *ProgressHub) writePump(c *progressClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
