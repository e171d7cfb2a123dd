package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/chat"
	"github.com/avestan-labs/pigeon/internal/store"
)

type UserHandler struct {
	users    *store.UserStore
	presence chat.PresenceChecker
	logger   *zap.Logger
}

func NewUserHandler(users *store.UserStore, presence chat.PresenceChecker, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, presence: presence, logger: logger}
}

type userView struct {
	ID          int     `json:"id"`
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	IsOnline    bool    `json:"is_online"`
}

// Search lists users matching the q query parameter, excluding the caller.
func (h *UserHandler) Search(c *gin.Context) {
	userID := c.GetInt("user_id")
	query := strings.TrimSpace(c.Query("q"))

	users, err := h.users.Search(userID, query, 20)
	if err != nil {
		h.logger.Error("failed to search users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch users"})
		return
	}

	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, userView{
			ID:          user.ID,
			Username:    user.Username,
			DisplayName: user.DisplayName,
			AvatarURL:   user.AvatarURL,
			IsOnline:    h.presence.IsOnline(user.ID),
		})
	}

	c.JSON(http.StatusOK, views)
}

// GetProfile returns a public user profile by username.
func (h *UserHandler) GetProfile(c *gin.Context) {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}

	user, err := h.users.GetByUsername(username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("failed to fetch user", zap.String("username", username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":           user.ID,
		"username":     user.Username,
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"is_online":    h.presence.IsOnline(user.ID),
		"created_at":   user.CreatedAt,
	})
}

// GetMyProfile returns the caller's own record, phone number included.
func (h *UserHandler) GetMyProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	user, err := h.users.GetByID(userID)
	if err != nil {
		h.logger.Error("failed to fetch profile", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch profile"})
		return
	}

	c.JSON(http.StatusOK, user)
}

type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.users.UpdateDisplayName(userID, req.DisplayName); err != nil {
		h.logger.Error("failed to update profile", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated", "display_name": req.DisplayName})
}
