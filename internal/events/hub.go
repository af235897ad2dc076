package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one connected operator session.
type Client struct {
	UserID string
	Email  string

	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend enqueues without blocking. It reports false when the buffer is
// full or the session is already closed; the send channel is only ever
// closed under the same lock, so a false result is the worst outcome.
func (c *Client) trySend(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Hub fans events out to connected operator sessions. Delivery is
// best-effort: marshal or write failures are logged and never propagated
// back to the caller.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		logger:  log.With(slog.String("service", "events")),
		clients: make(map[*Client]struct{}),
	}
}

// Broadcast delivers the event to every connected session.
func (h *Hub) Broadcast(event Event) {
	payload, err := Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", slog.String("type", string(event.EventType())), slog.Any("error", err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		h.push(client, payload)
	}
}

// SendToUser delivers the event to every session of a single operator.
func (h *Hub) SendToUser(userID string, event Event) {
	payload, err := Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", slog.String("type", string(event.EventType())), slog.Any("error", err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.UserID == userID {
			h.push(client, payload)
		}
	}
}

// ConnectedUserIDs returns the distinct operator ids with at least one
// live session.
func (h *Hub) ConnectedUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]struct{}, len(h.clients))
	ids := make([]string, 0, len(h.clients))
	for client := range h.clients {
		if _, ok := seen[client.UserID]; ok {
			continue
		}
		seen[client.UserID] = struct{}{}
		ids = append(ids, client.UserID)
	}
	return ids
}

// HandleConnection runs the session until the peer disconnects. It registers
// the client, announces presence, and blocks on the read loop.
func (h *Hub) HandleConnection(conn *websocket.Conn, userID, email string) {
	client := &Client{
		UserID: userID,
		Email:  email,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("operator connected", slog.String("user_id", userID), slog.String("email", email))
	h.Broadcast(UserOnline{UserID: userID})

	go client.writePump()
	client.readPump()

	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()

	h.logger.Info("operator disconnected", slog.String("user_id", userID))
	h.Broadcast(UserOffline{UserID: userID})
}

// push enqueues without blocking; a session that cannot keep up is dropped
// rather than stalling the fan-out. The closed session stays in the client
// map until its read loop unwinds, so later pushes must stay safe on it.
func (h *Hub) push(client *Client, payload []byte) {
	if !client.trySend(payload) {
		h.logger.Warn("dropping slow websocket client", slog.String("user_id", client.UserID))
		client.close()
	}
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Inbound frames are not part of the protocol; reading only
		// detects disconnects and services pings.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
