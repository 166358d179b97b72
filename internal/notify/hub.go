package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tradearena/trading-engine/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	clientBuffer   = 64
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub broadcasts events to connected WebSocket clients. Slow clients are
// disconnected rather than allowed to stall the broadcast loop.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	log        *slog.Logger
}

var _ Sink = (*Hub)(nil)

// NewHub returns a hub; call Run before serving connections.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		log:        log,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			metrics.WSClients.Set(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			metrics.WSClients.Set(float64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.WSClients.Set(float64(len(h.clients)))
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Client can't keep up; drop it.
					delete(h.clients, c)
					close(c.send)
					metrics.WSDropped.Inc()
					metrics.WSClients.Set(float64(len(h.clients)))
				}
			}
		}
	}
}

// Publish queues an event for broadcast without blocking the caller. When
// the broadcast queue is full the event is dropped; the feed is a stream of
// snapshots, a missed one is superseded by the next.
func (h *Hub) Publish(e Event) {
	raw, ok := e.marshal()
	if !ok {
		return
	}
	select {
	case h.broadcast <- raw:
	default:
		metrics.WSDropped.Inc()
	}
}

// HandleWS upgrades the request and attaches the client to the hub.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, clientBuffer)}
	h.register <- c
	go c.writePump()
	go c.readPump()
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump discards inbound frames; the stream is one-directional. It exists
// to process control frames and detect closed connections.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
