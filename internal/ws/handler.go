package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"repcount/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// StatusFunc returns the current session status.
type StatusFunc func() session.Status

// Handler upgrades /ws/count requests and registers them with the hub.
type Handler struct {
	hub    *CountHub
	status StatusFunc
}

// NewHandler creates a new WebSocket handler. status may be nil, in which
// case no snapshot is sent on connect.
func NewHandler(hub *CountHub, status StatusFunc) *Handler {
	return &Handler{hub: hub, status: status}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	log.Printf("[WS] New connection from %s", r.RemoteAddr)

	c := h.hub.Register(conn)

	if h.status != nil {
		data, err := json.Marshal(FromStatus(h.status()))
		if err == nil {
			if err := c.write(data); err != nil {
				h.hub.Unregister(c)
				conn.Close()
				return
			}
		}
	}

	go h.readPump(c)
}

// readPump keeps the connection alive and detects disconnection.
func (h *Handler) readPump(c *Client) {
	conn := c.conn
	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Unregister(c)
		conn.Close()
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}
	}
}
