package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/push"
)

// PushHandler manages Web Push subscriptions. All routes return 503 when
// the notifier is disabled (no VAPID keys configured).
type PushHandler struct {
	notifier *push.Notifier
	logger   *zap.Logger
}

func NewPushHandler(notifier *push.Notifier, logger *zap.Logger) *PushHandler {
	return &PushHandler{notifier: notifier, logger: logger}
}

func (h *PushHandler) VAPIDPublicKey(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.notifier.VAPIDPublicKey()})
}

type SubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256dh   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

func (h *PushHandler) Subscribe(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications disabled"})
		return
	}

	userID := c.GetInt("user_id")

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub := push.Subscription{Endpoint: req.Endpoint, KeyP256dh: req.P256dh, KeyAuth: req.Auth}
	if err := h.notifier.Subscribe(userID, sub); err != nil {
		h.logger.Error("failed to store push subscription", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "subscribed"})
}

type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

func (h *PushHandler) Unsubscribe(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications disabled"})
		return
	}

	userID := c.GetInt("user_id")

	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.notifier.Unsubscribe(userID, req.Endpoint); err != nil {
		h.logger.Error("failed to revoke push subscription", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "unsubscribed"})
}
