// Package ws runs the real-time side of message delivery: one goroutine
// pair per connection, an in-band authentication handshake, and fan-out of
// persisted messages to every live connection of the receiver.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/auth"
	"github.com/avestan-labs/pigeon/internal/chat"
	"github.com/avestan-labs/pigeon/internal/metrics"
	"github.com/avestan-labs/pigeon/internal/models"
	"github.com/avestan-labs/pigeon/internal/registry"
	"github.com/avestan-labs/pigeon/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

type Hub struct {
	registry *registry.Registry
	chat     *chat.Service
	auth     *auth.Service
	logger   *zap.Logger
}

func NewHub(reg *registry.Registry, chatSvc *chat.Service, authSvc *auth.Service, logger *zap.Logger) *Hub {
	return &Hub{
		registry: reg,
		chat:     chatSvc,
		auth:     authSvc,
		logger:   logger,
	}
}

// DeliverNewMessage pushes a persisted message to every live connection of
// its receiver. Best-effort: an offline receiver, or a handle with a full
// send buffer, simply misses the event and catches up via polling.
func (h *Hub) DeliverNewMessage(msg *models.Message) {
	event := &NewMessageEvent{Type: EventNewMessage, Message: msg}
	for _, handle := range h.registry.HandlesFor(msg.ReceiverID) {
		if handle.Deliver(event) {
			metrics.MessagesDeliveredTotal.Inc()
		} else {
			h.logger.Warn("send buffer full, dropping new_message event",
				zap.Int("receiver_id", msg.ReceiverID),
				zap.Int("message_id", msg.ID))
		}
	}
}

// HandleWebSocket upgrades the request and starts the connection's pump
// goroutines. The connection begins unauthenticated; identity arrives
// in-band via an authenticate event, not via HTTP middleware.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.New(),
		conn: conn,
		hub:  h,
		send: make(chan interface{}, 256),
	}

	go client.readPump()
	go client.writePump()
}

// Client is one websocket connection. userID is zero until the
// authentication handshake succeeds; only the read pump touches it.
type Client struct {
	id     uuid.UUID
	userID int
	conn   *websocket.Conn
	hub    *Hub
	send   chan interface{}
}

func (c *Client) ID() uuid.UUID { return c.id }

// Deliver queues an event without blocking. Reports false when the buffer
// is full so the caller can decide what dropping means.
func (c *Client) Deliver(event interface{}) bool {
	select {
	case c.send <- event:
		return true
	default:
		return false
	}
}

func (c *Client) authenticated() bool { return c.userID != 0 }

func (c *Client) readPump() {
	defer func() {
		if c.authenticated() {
			c.hub.registry.Unregister(c.userID, c)
			c.hub.logger.Info("user disconnected", zap.Int("user_id", c.userID))
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var event ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}

		switch event.Type {
		case EventAuthenticate:
			c.handleAuthenticate(event)
		case EventSendMessage:
			c.handleSendMessage(event)
		}
	}
}

// handleAuthenticate moves the connection from unauthenticated to
// authenticated. A failure is reported on the connection and leaves it
// open so the client can retry with a fresh token.
func (c *Client) handleAuthenticate(event ClientEvent) {
	if c.authenticated() {
		c.Deliver(&AuthenticatedEvent{Type: EventAuthenticated, UserID: c.userID})
		return
	}

	claims, err := c.hub.auth.ValidateToken(event.Token)
	if err != nil {
		c.Deliver(&AuthErrorEvent{Type: EventAuthError, Error: "invalid token"})
		return
	}

	exists, err := c.hub.auth.UserExists(claims.UserID)
	if err != nil || !exists {
		c.Deliver(&AuthErrorEvent{Type: EventAuthError, Error: "user not found"})
		return
	}

	c.userID = claims.UserID
	c.hub.registry.Register(c.userID, c)
	c.hub.logger.Info("user authenticated", zap.Int("user_id", c.userID))
	c.Deliver(&AuthenticatedEvent{Type: EventAuthenticated, UserID: c.userID})
}

// handleSendMessage runs one send request/response exchange. Every outcome
// is reported back on this connection tagged with the client's temp_id; a
// failed send never closes the connection and never persists a row.
func (c *Client) handleSendMessage(event ClientEvent) {
	if !c.authenticated() {
		c.Deliver(&MessageErrorEvent{Type: EventMessageError, TempID: event.TempID, Error: "not authenticated"})
		return
	}

	msg, err := c.hub.chat.Send(c.userID, event.ReceiverID, event.Content)
	if err != nil {
		c.Deliver(&MessageErrorEvent{Type: EventMessageError, TempID: event.TempID, Error: sendErrorText(err)})
		return
	}

	// Request/response correlation with this connection only, not a
	// broadcast to the sender's other devices.
	c.Deliver(&MessageSentEvent{Type: EventMessageSent, TempID: event.TempID, Message: msg})
}

func sendErrorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrInvalidReceiver),
		errors.Is(err, chat.ErrSelfMessage):
		return err.Error()
	case errors.Is(err, store.ErrNotFound):
		return "receiver not found"
	default:
		return "failed to send message"
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
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			data, _ := json.Marshal(event)
			w.Write(data)

			if err := w.Close(); err != nil {
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
