package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"repcount/internal/session"
)

const writeWait = 10 * time.Second

// CountHub pushes live session events to connected WebSocket clients.
type CountHub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

// Client is a registered connection. Writes to it are serialized.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *Client) write(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// NewCountHub creates a new count hub
func NewCountHub() *CountHub {
	return &CountHub{
		clients: make(map[*Client]bool),
	}
}

// Register adds a connection to the hub
func (h *CountHub) Register(conn *websocket.Conn) *Client {
	c := &Client{conn: conn}

	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[WS] Client registered (total: %d)", total)
	return c
}

// Unregister removes a connection from the hub
func (h *CountHub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		log.Printf("[WS] Client unregistered")
	}
}

// ClientCount returns the number of connected clients
func (h *CountHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends a raw message to every client concurrently and returns
// once each write finished or timed out. Clients that fail to receive it
// are dropped.
func (h *CountHub) Broadcast(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.write(message); err != nil {
				log.Printf("[WS] Error sending to client: %v", err)
				h.Unregister(c)
				c.conn.Close()
			}
		}()
	}
	wg.Wait()
}

// BroadcastCount sends a count message to every client.
func (h *CountHub) BroadcastCount(msg *CountMessage) {
	if h.ClientCount() == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling count message: %v", err)
		return
	}
	h.Broadcast(data)
}

// Run forwards session events to the clients until events is closed.
// A slow client delays later events on this loop only; the publisher
// drops events while the channel buffer is full.
func (h *CountHub) Run(events <-chan session.Event) {
	for ev := range events {
		h.BroadcastCount(FromEvent(ev))
	}
}

// Close disconnects every client.
func (h *CountHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(time.Second))
		c.conn.Close()
		delete(h.clients, c)
	}
}
