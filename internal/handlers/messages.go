package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/chat"
	"github.com/avestan-labs/pigeon/internal/models"
	"github.com/avestan-labs/pigeon/internal/store"
)

type MessageHandler struct {
	chat   *chat.Service
	logger *zap.Logger
}

func NewMessageHandler(chatSvc *chat.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{chat: chatSvc, logger: logger}
}

// MessageView is the caller-relative rendering of a message.
type MessageView struct {
	ID         int       `json:"id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	IsOutgoing bool      `json:"is_outgoing"`
	SenderID   int       `json:"sender_id"`
}

func toView(userID int, msg *models.Message) MessageView {
	return MessageView{
		ID:         msg.ID,
		Content:    msg.Content,
		Timestamp:  msg.CreatedAt,
		IsOutgoing: msg.SenderID == userID,
		SenderID:   msg.SenderID,
	}
}

// GetConversations returns one summary per distinct peer, newest first.
func (h *MessageHandler) GetConversations(c *gin.Context) {
	userID := c.GetInt("user_id")

	summaries, err := h.chat.ListConversations(userID)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// GetHistory returns the full thread with one peer, ascending. A contact
// row for the peer is ensured as a side effect.
func (h *MessageHandler) GetHistory(c *gin.Context) {
	userID := c.GetInt("user_id")

	peerID, err := strconv.Atoi(c.Param("peer_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer id"})
		return
	}

	messages, err := h.chat.History(userID, peerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("failed to fetch history",
			zap.Int("user_id", userID), zap.Int("peer_id", peerID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	views := make([]MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, toView(userID, msg))
	}

	c.JSON(http.StatusOK, gin.H{"messages": views})
}

// CheckNew returns inbound messages newer than last_message_id, ascending.
// The polling fallback for clients without a live connection.
func (h *MessageHandler) CheckNew(c *gin.Context) {
	userID := c.GetInt("user_id")

	lastID, err := strconv.Atoi(c.DefaultQuery("last_message_id", "0"))
	if err != nil || lastID < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_message_id"})
		return
	}

	messages, err := h.chat.NewSince(userID, lastID)
	if err != nil {
		h.logger.Error("failed to check new messages", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
		return
	}

	views := make([]MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, toView(userID, msg))
	}

	c.JSON(http.StatusOK, gin.H{"messages": views})
}

type SendMessageRequest struct {
	ReceiverID int    `json:"receiver_id"`
	Content    string `json:"content"`
}

// SendMessage is the REST send path. Same pipeline as the websocket one:
// validate, persist with server id and timestamp, fan out to the
// receiver's live connections.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID := c.GetInt("user_id")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	msg, err := h.chat.Send(userID, req.ReceiverID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyContent),
			errors.Is(err, chat.ErrInvalidReceiver),
			errors.Is(err, chat.ErrSelfMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "receiver not found"})
		default:
			h.logger.Error("failed to send message",
				zap.Int("sender_id", userID), zap.Int("receiver_id", req.ReceiverID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}
