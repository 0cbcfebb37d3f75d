// Package events implements the operator-facing live event stream
// enriching §4.6's "observable side effects": every driver/autopilot
// state transition a human might want to watch in real time, pushed
// over a WebSocket rather than only left in structured logs.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub maintains active WebSocket connections and fans out published
// events to every client subscribed to the matching channel.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan message
	register   chan *client
	unregister chan *client
	log        *zap.SugaredLogger
	mu         sync.RWMutex
}

type message struct {
	channel string
	payload []byte
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		log:        log,
	}
}

// Run drives the hub's event loop; callers start it in its own
// goroutine once at startup.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case m := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				if !c.isSubscribed(m.channel) {
					continue
				}
				select {
				case c.send <- m.payload:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish marshals data as JSON and broadcasts it to every client
// subscribed to channel (e.g. "auction:42", "driver:state").
func (h *Hub) Publish(channel string, data interface{}) {
	payload, err := json.Marshal(struct {
		Channel string      `json:"channel"`
		Data    interface{} `json:"data"`
	}{Channel: channel, Data: data})
	if err != nil {
		if h.log != nil {
			h.log.Warnw("events: marshal failed", "channel", channel, "error", err)
		}
		return
	}
	select {
	case h.broadcast <- message{channel: channel, payload: payload}:
	default:
		if h.log != nil {
			h.log.Warnw("events: broadcast buffer full, dropping", "channel", channel)
		}
	}
}

// ServeHTTP upgrades the connection and runs its read/write pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warnw("events: upgrade failed", "error", err)
		}
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		subs: make(map[string]bool),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

type subscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			continue
		}
		c.mu.Lock()
		switch req.Op {
		case "subscribe":
			for _, ch := range req.Channels {
				c.subs[ch] = true
			}
		case "unsubscribe":
			for _, ch := range req.Channels {
				delete(c.subs, ch)
			}
		}
		c.mu.Unlock()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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
