package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn     *websocket.Conn
	send     chan Envelope
	done     chan struct{}
	tenantID string
	once     sync.Once
}

func newClient(conn *websocket.Conn, tenantID string) *client {
	return &client{
		conn:     conn,
		send:     make(chan Envelope, sendBuffer),
		done:     make(chan struct{}),
		tenantID: tenantID,
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub keeps websocket connections grouped by tenant.
type Hub struct {
	lock    sync.RWMutex
	clients map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ServeWS upgrades the request and joins the connection to the tenant's room.
// It blocks until the peer disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("tenantID", tenantID).Msg("Websocket upgrade failed")
		return
	}
	c := newClient(conn, tenantID)
	h.add(c)
	go h.writePump(c)
	log.Info().Str("tenantID", tenantID).Str("remote", r.RemoteAddr).Msg("Websocket client connected")

	defer func() {
		h.drop(c)
		log.Info().Str("tenantID", tenantID).Str("remote", r.RemoteAddr).Msg("Websocket client disconnected")
	}()
	// drain reads so close frames and pings are handled
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) add(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.clients, c)
}

func (h *Hub) drop(c *client) {
	h.remove(c)
	c.close()
}

// writePump is the only writer on the connection.
func (h *Hub) writePump(c *client) {
	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				log.Warn().Err(err).Str("tenantID", c.tenantID).Str("event", env.Event).Msg("Dropping websocket client after failed write")
				h.drop(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// ClientCount returns the number of connections in a tenant's room.
func (h *Hub) ClientCount(tenantID string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	n := 0
	for c := range h.clients {
		if c.tenantID == tenantID {
			n++
		}
	}
	return n
}

// Broadcast queues the event for every connection in the tenant's room without
// blocking on the network.
func (h *Hub) Broadcast(tenantID, event string, payload interface{}) {
	env := Envelope{Event: event, TenantID: tenantID, Data: payload, Timestamp: time.Now().UTC()}

	h.lock.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.tenantID == tenantID {
			targets = append(targets, c)
		}
	}
	h.lock.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- env:
		default:
			log.Warn().Str("tenantID", tenantID).Str("event", event).Msg("Dropping websocket client with a full send buffer")
			h.drop(c)
		}
	}
}
