package notify

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// sendBuffer bounds the per-client queue; a client that cannot keep up
// is dropped rather than allowed to stall the hub.
const sendBuffer = 32

// Client is one websocket connection registered with the hub. gorilla
// connections support only one concurrent writer, so every write goes
// through the client's queue and its single writer goroutine.
type Client struct {
	UserID  int64
	IsAdmin bool

	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	send   chan Envelope
}

// NewClient wraps a connection for registration with the hub.
func NewClient(userID int64, isAdmin bool, conn *websocket.Conn) *Client {
	return &Client{
		UserID:  userID,
		IsAdmin: isAdmin,
		conn:    conn,
		send:    make(chan Envelope, sendBuffer),
	}
}

// Enqueue queues an envelope for delivery. Returns false when the
// client is closed or its queue is full; it never blocks.
func (c *Client) Enqueue(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

// close stops the queue. Safe to call more than once; concurrent
// Enqueue calls see the closed flag instead of a closed channel.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writeLoop is the connection's only writer. It exits when the queue
// closes or a write fails; closing the conn makes the read side
// unregister the client.
func (c *Client) writeLoop() {
	for env := range c.send {
		if err := c.conn.WriteJSON(env); err != nil {
			log.Debug().Err(err).Int64("user_id", c.UserID).Msg("Websocket write failed")
			_ = c.conn.Close()
			return
		}
	}
	_ = c.conn.Close()
}

type message struct {
	envelope  Envelope
	adminOnly bool
}

// Hub fans events out to registered websocket clients. All client map
// access happens on the run goroutine, so no locking is needed there.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan message
	done       chan struct{}
}

// NewHub creates a hub and starts its dispatch goroutine.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan message, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a client to the fan-out set and starts its writer.
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a client and stops its writer.
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// Broadcast implements Notifier.
func (h *Hub) Broadcast(e Event) {
	h.send(e, false)
}

// BroadcastAdmin implements Notifier.
func (h *Hub) BroadcastAdmin(e Event) {
	h.send(e, true)
}

func (h *Hub) send(e Event, adminOnly bool) {
	msg := message{envelope: Envelope{Type: e.EventType(), Data: e}, adminOnly: adminOnly}
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Close stops the dispatch goroutine. Pending broadcasts are dropped.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go c.writeLoop()
			log.Debug().Int64("user_id", c.UserID).Bool("admin", c.IsAdmin).Msg("Client registered")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.close()
				log.Debug().Int64("user_id", c.UserID).Msg("Client unregistered")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if msg.adminOnly && !c.IsAdmin {
					continue
				}
				if !c.Enqueue(msg.envelope) {
					log.Debug().Int64("user_id", c.UserID).Msg("Dropping slow client")
					delete(h.clients, c)
					c.close()
				}
			}

		case <-h.done:
			for c := range h.clients {
				c.close()
			}
			return
		}
	}
}
