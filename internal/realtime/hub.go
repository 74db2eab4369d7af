// README: WebSocket hub; subscribes to the redis change feed and pushes debounced refresh frames.
package realtime

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

const debounceWindow = 50 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // tablets connect from the local network
	},
}

// Hub fans a coalesced "refresh" frame out to all connected tablets whenever
// shared state changes. One frame per quiet window, regardless of how many
// entities changed — clients re-fetch their own filtered views.
type Hub struct {
	redis *redis.Client

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	debounce *debouncer
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(r *redis.Client) *Hub {
	h := &Hub{
		redis:   r,
		clients: make(map[*wsClient]struct{}),
	}
	h.debounce = newDebouncer(debounceWindow, h.broadcastRefresh)
	return h
}

// Run consumes the redis change channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sub := h.redis.Subscribe(ctx, Channel)
	defer sub.Close()
	defer h.debounce.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			h.debounce.Trigger()
		}
	}
}

func (h *Hub) broadcastRefresh() {
	frame := []byte(`{"type":"refresh"}`)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Slow client: drop it rather than block the board.
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// HandleWS upgrades an HTTP request and registers the connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("realtime: upgrade: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 16)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go h.readPump(c)
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
