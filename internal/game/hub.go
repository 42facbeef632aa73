package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crashgame/internal/metrics"
)

const writeWait = 10 * time.Second

// Conn is the transport half of a client connection; *websocket.Conn
// satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Broadcaster is what the round engine needs from the hub.
type Broadcaster interface {
	Broadcast(message interface{})
	SendToPlayer(playerID string, message interface{})
}

// Client is one registered connection. Outbound messages go through a
// buffered queue drained by a single writer goroutine, which keeps them in
// issue order and keeps slow sockets away from the tick loop.
type Client struct {
	ID       string
	PlayerID string

	conn       Conn
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// Done is closed once the client has been unregistered.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// shutdown stops the writer and closes the connection. Concurrent callers
// return only after the close has completed.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Hub is the registry of live connections and the bus that fans engine
// messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	buffer  int
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewHub creates an empty hub. Each client queues up to buffer outbound
// messages before it is dropped as too slow.
func NewHub(buffer int, log *zap.Logger, m *metrics.Metrics) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		buffer:  buffer,
		log:     log.Named("hub"),
		metrics: m,
	}
}

// Register issues a connection id and starts the client's writer. Callers
// must pair it with Release (or Unregister) on every exit path.
func (h *Hub) Register(conn Conn, playerID string) *Client {
	client := &Client{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		conn:       conn,
		send:       make(chan []byte, h.buffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.log.Info("client connected",
		zap.String("client", client.ID),
		zap.String("player", playerID),
		zap.Int("total", total))

	go h.writePump(client)
	return client
}

// Unregister removes a client and closes its connection. It is idempotent
// and safe to call while a broadcast is in flight.
func (h *Hub) Unregister(clientID string) {
	h.remove(clientID, false)
}

// Release unregisters c and waits until its writer has stopped touching the
// connection. After Release returns the transport may recycle the
// connection.
func (h *Hub) Release(c *Client) {
	h.remove(c.ID, false)
	c.shutdown()
	<-c.writerDone
}

func (h *Hub) remove(clientID string, dropped bool) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}

	client.shutdown()

	h.metrics.ClientDisconnected(dropped)
	h.log.Info("client disconnected",
		zap.String("client", clientID),
		zap.String("player", client.PlayerID),
		zap.Bool("dropped", dropped),
		zap.Int("total", total))
}

// Broadcast delivers message to a snapshot of the registered clients.
// A client whose queue is full is dropped; the others still receive it.
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	for _, c := range h.snapshot(func(*Client) bool { return true }) {
		h.deliver(c, data)
	}
}

// SendToPlayer delivers message to every connection of playerID. Players
// without a live connection are skipped.
func (h *Hub) SendToPlayer(playerID string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("send marshal failed", zap.Error(err))
		return
	}

	for _, c := range h.snapshot(func(c *Client) bool { return c.PlayerID == playerID }) {
		h.deliver(c, data)
	}
}

// Send delivers message to a single connection.
func (h *Hub) Send(clientID string, message interface{}) error {
	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionLost
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	if !h.deliver(client, data) {
		return ErrConnectionLost
	}
	return nil
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unregisters every client.
func (h *Hub) Close() {
	for _, c := range h.snapshot(func(*Client) bool { return true }) {
		h.Unregister(c.ID)
	}
}

func (h *Hub) snapshot(keep func(*Client) bool) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) deliver(c *Client, data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		h.log.Warn("client queue full, dropping connection", zap.String("client", c.ID))
		h.remove(c.ID, true)
		return false
	}
}

func (h *Hub) writePump(c *Client) {
	defer close(c.writerDone)

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			select {
			case <-c.done:
				return
			default:
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Warn("write failed", zap.String("client", c.ID), zap.Error(err))
				h.remove(c.ID, true)
				return
			}
		}
	}
}
