package indicator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/siddug/wave-sub000/internal/logging"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts commands to every connected pill window as JSON frames.
// New clients receive the latest command on connect.
type Hub struct {
	log logging.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	last    Command
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub with no clients.
func NewHub() *Hub {
	return &Hub{
		log:     logging.NewLogger(context.Background()).WithComponent("indicator"),
		clients: make(map[*wsClient]struct{}),
	}
}

func (h *Hub) Show(mode Mode) { h.broadcast(Command{Visible: true, Mode: mode}) }

func (h *Hub) Hide() { h.broadcast(Command{}) }

// Clients returns the number of connected windows.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(cmd Command) {
	data, _ := json.Marshal(cmd)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = cmd
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warnf("indicator client too slow, dropping it")
			h.drop(c)
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade error: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 16)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	data, _ := json.Marshal(h.last)
	c.send <- data
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// readPump only services control frames; clients never send commands.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.mu.Lock()
		h.drop(c)
		h.mu.Unlock()
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugf("websocket read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
