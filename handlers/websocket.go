package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"remindbot/logging"
	"remindbot/middleware"
	"remindbot/models"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // clients authenticate with a token, not cookies
	},
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// Hub fans reminder events out to the websocket connections of their owners.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        *slog.Logger
	mu         sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		done:       make(chan struct{}),
		log:        logging.OrNop(logger).With("component", "ws"),
	}
}

// Run serves registrations until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", "user_id", client.userID, "clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client unregistered", "user_id", client.userID, "clients", total)
		}
	}
}

// Clients returns the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SendToUser(userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal ws message", "type", msg.Type, "error", err)
		return
	}

	var stale []*Client
	sent := 0
	h.mu.RLock()
	for client := range h.clients {
		if client.userID != userID {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	if len(stale) > 0 {
		h.mu.Lock()
		for _, client := range stale {
			if _, ok := h.clients[client]; ok {
				h.log.Warn("client buffer full, closing", "user_id", client.userID)
				delete(h.clients, client)
				close(client.send)
			}
		}
		h.mu.Unlock()
	}
	h.log.Debug("event sent", "type", msg.Type, "user_id", userID, "connections", sent)
}

// ReminderChanged tells the owner about a create, update or cancel.
func (h *Hub) ReminderChanged(eventType string, r models.Reminder) {
	h.SendToUser(r.OwnerUserID, models.WSMessage{Type: eventType, Payload: r})
}

// ReminderProcessed is a scheduler observer.
func (h *Hub) ReminderProcessed(r models.Reminder, outcome models.DeliveryOutcome) {
	eventType := models.WSTypeReminderDelivered
	if outcome.Missed {
		eventType = models.WSTypeReminderMissed
	}
	h.SendToUser(r.OwnerUserID, models.WSMessage{
		Type:    eventType,
		Payload: models.ReminderEventPayload{Reminder: r, Outcome: outcome},
	})
}

// HandleWebSocket upgrades an authenticated request. The token may come in
// the query string; see middleware.Auth.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "user_id", userID, "error", err)
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		userID: userID,
	}

	welcome := []byte(`{"type":"welcome","payload":{"message":"connected"}}`)
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		h.log.Warn("welcome failed", "user_id", userID, "error", err)
		conn.Close()
		return
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// readPump only keeps the connection alive; clients do not send commands.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("unexpected close", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.log.Debug("write failed", "user_id", c.userID, "error", err)
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
