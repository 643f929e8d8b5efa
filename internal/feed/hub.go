// Package feed streams table change events to websocket clients.
package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/SrJCBM/BDD-Avanzada/internal/tables"
	"github.com/gorilla/websocket"
)

const sendBuffer = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is a single connected websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains the set of active clients and broadcasts events to them.
// A client that cannot keep up is dropped rather than slowing writers.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

var _ tables.Notifier = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Printf("Feed client registered. Total clients: %d", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		log.Printf("Feed client unregistered. Total clients: %d", n)
	}
}

// Publish implements tables.Notifier.
func (h *Hub) Publish(ev tables.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Error encoding feed event: %v", err)
		return
	}
	h.Broadcast(msg)
}

// Broadcast queues msg for every client without blocking.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeWs upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		log.Printf("Feed upgrade failed: %v", err)
		return
	}
	c := &Client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	go c.writePump()
	go c.readPump(h)
}

// readPump only watches for the peer going away; inbound messages are ignored.
func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Printf("Error writing feed message: %v", err)
			return
		}
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		log.Printf("Error closing feed connection: %v", err)
	}
}
