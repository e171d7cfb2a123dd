package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/avestan-labs/pigeon/internal/chat"
	"github.com/avestan-labs/pigeon/internal/models"
	"github.com/avestan-labs/pigeon/internal/store"
)

type ContactHandler struct {
	chat     *chat.Service
	contacts *store.ContactStore
	logger   *zap.Logger
}

func NewContactHandler(chatSvc *chat.Service, contacts *store.ContactStore, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{chat: chatSvc, contacts: contacts, logger: logger}
}

func (h *ContactHandler) List(c *gin.Context) {
	userID := c.GetInt("user_id")

	contacts, err := h.contacts.ListByOwner(userID)
	if err != nil {
		h.logger.Error("failed to list contacts", zap.Int("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch contacts"})
		return
	}

	if contacts == nil {
		contacts = []*models.Contact{}
	}

	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

type CreateContactRequest struct {
	PeerID   int    `json:"peer_id" binding:"required"`
	Nickname string `json:"nickname"`
}

// Create is the explicit add-contact action. The implicit path is contact
// auto-creation triggered by message activity.
func (h *ContactHandler) Create(c *gin.Context) {
	userID := c.GetInt("user_id")

	var req CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	contact, err := h.chat.CreateContact(userID, req.PeerID, req.Nickname)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrSelfContact):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, store.ErrDuplicate):
			c.JSON(http.StatusConflict, gin.H{"error": "contact already exists"})
		default:
			h.logger.Error("failed to create contact",
				zap.Int("owner_id", userID), zap.Int("peer_id", req.PeerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create contact"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"contact": contact})
}

type UpdateContactRequest struct {
	Nickname string `json:"nickname" binding:"required"`
}

func (h *ContactHandler) UpdateNickname(c *gin.Context) {
	userID := c.GetInt("user_id")

	contactID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
		return
	}

	var req UpdateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nickname must not be empty"})
		return
	}

	if err := h.contacts.UpdateNickname(contactID, userID, nickname); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		h.logger.Error("failed to update contact",
			zap.Int("owner_id", userID), zap.Int("contact_id", contactID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update contact"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated", "nickname": nickname})
}

// Delete removes the address-book entry only; message history with the
// peer is unaffected.
func (h *ContactHandler) Delete(c *gin.Context) {
	userID := c.GetInt("user_id")

	contactID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact id"})
		return
	}

	if err := h.contacts.Delete(contactID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		h.logger.Error("failed to delete contact",
			zap.Int("owner_id", userID), zap.Int("contact_id", contactID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete contact"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
