package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/opensky-to/agent-sub001/pkg/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The server only listens on localhost; the UI may be served from a
	// file:// origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is the envelope for every pushed update.
type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub fans tracker notifications out to connected websocket clients. It
// implements tracking.Notifier; a slow client gets dropped rather than
// blocking the tracker.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan wsMessage
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// HandleWS upgrades the connection and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan wsMessage, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.drop(c)
	for {
		// Inbound messages are ignored; reading detects the close.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// Close disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
}

func (h *Hub) broadcast(msgType string, data any) {
	msg := wsMessage{Type: msgType, Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Buffer full: the client is too slow, cut it loose.
			delete(h.clients, c)
			close(c.send)
			go c.conn.Close()
		}
	}
}

// FlightChanged implements tracking.Notifier.
func (h *Hub) FlightChanged(f *model.Flight) {
	h.broadcast("flight", f)
}

// TrackingStatusChanged implements tracking.Notifier.
func (h *Hub) TrackingStatusChanged(s model.TrackingStatus) {
	h.broadcast("status", s)
}

// TrackingEventMarkerAdded implements tracking.Notifier.
func (h *Hub) TrackingEventMarkerAdded(m model.EventMarker) {
	h.broadcast("marker", m)
}

// LocationChanged implements tracking.Notifier.
func (h *Hub) LocationChanged(lat, lon, alt float64) {
	h.broadcast("location", map[string]float64{"lat": lat, "lon": lon, "alt": alt})
}

// LandingReported implements tracking.Notifier.
func (h *Hub) LandingReported(timing model.LandingReportTiming, td *model.TouchDown) {
	h.broadcast("landing", map[string]any{"timing": timing, "touchdown": td})
}

// TrackingAborted implements tracking.Notifier.
func (h *Hub) TrackingAborted(reason model.AbortReason, resumeAllowed bool, message string) {
	h.broadcast("abort", map[string]any{
		"reason":         reason,
		"resume_allowed": resumeAllowed,
		"message":        message,
	})
}
