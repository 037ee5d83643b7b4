package events

import (
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards connect from their own origin.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	clientSendBuffer = 256
	writeTimeout     = 10 * time.Second
	pongTimeout      = 60 * time.Second
	pingInterval     = 54 * time.Second
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan Event
}

// Hub fans events out to connected websocket clients. Clients that cannot
// keep up are dropped rather than allowed to stall the broadcast loop.
type Hub struct {
	logger *log.Logger

	broadcast  chan Event
	register   chan *client
	unregister chan *client

	mu      sync.RWMutex
	clients map[string]*client

	done chan struct{}
	once sync.Once
}

var _ Publisher = (*Hub)(nil)

// NewHub builds a hub. Call Run on its own goroutine before serving clients.
func NewHub() *Hub {
	return &Hub{
		logger:     log.New(os.Stdout, "[EVENTS] ", log.LstdFlags),
		broadcast:  make(chan Event, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[string]*client),
		done:       make(chan struct{}),
	}
}

// Run services registrations and broadcasts until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.logger.Printf("event client connected: id=%s total=%d", c.id, h.clientCount())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()

		case ev := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Send buffer full, client is too slow.
					delete(h.clients, id)
					close(c.send)
					h.logger.Printf("dropped slow event client: id=%s", id)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Publish queues an event for broadcast. Never blocks: if the broadcast
// buffer is full the event is dropped.
func (h *Hub) Publish(name string, payload any) {
	ev := Event{Name: name, Timestamp: time.Now().UTC(), Payload: payload}
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Printf("event feed saturated, dropped %s", name)
	}
}

// Close stops the run loop and disconnects all clients.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handler upgrades an HTTP request to a websocket subscription.
func (h *Hub) Handler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Event, clientSendBuffer),
	}
	if !h.addClient(cl) {
		conn.Close()
		return
	}

	go cl.writePump()
	go cl.readPump(h)
}

// addClient hands a client to the run loop. Returns false when the hub is
// already closed, so shutdown never blocks a connecting goroutine.
func (h *Hub) addClient(cl *client) bool {
	select {
	case h.register <- cl:
		return true
	case <-h.done:
		return false
	}
}

// removeClient is the mirror of addClient for disconnecting clients. After
// Close the run loop is gone and the send would park forever.
func (h *Hub) removeClient(cl *client) {
	select {
	case h.unregister <- cl:
	case <-h.done:
	}
}

// readPump discards inbound frames. The feed is one-way, but reading is
// required to process control frames and detect disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.removeClient(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
