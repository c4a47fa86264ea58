package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jafarnz/tpconnect/internal/database"
	"github.com/jafarnz/tpconnect/internal/logger"
	"github.com/jafarnz/tpconnect/internal/models"
	"github.com/jafarnz/tpconnect/internal/realtime"
)

var log = logger.New("api")

// MessageHandler handles message-related routes
type MessageHandler struct {
	DB     database.DBInterface
	Broker realtime.Broker
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(db database.DBInterface, broker realtime.Broker) *MessageHandler {
	return &MessageHandler{DB: db, Broker: broker}
}

// SendMessage persists a new message and notifies the conversation
// channel. The event is published only after the message is durably
// stored, so a realtime event never refers to a message that a
// history fetch could miss. A publish failure is logged and swallowed;
// the response reflects persistence alone.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	senderID := userID.(uuid.UUID)

	message, err := h.DB.CreateMessage(senderID, req.ReceiverID, req.Content)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	channel := realtime.ChannelName(senderID, req.ReceiverID)
	if err := h.Broker.Publish(c.Request.Context(), channel, realtime.EventNewMessage, message); err != nil {
		// Subscribers recover missed events from history on their
		// next fetch; the send itself has already succeeded.
		log.Error("Failed to publish message %s to %s: %v", message.ID, channel, err)
	}

	c.JSON(http.StatusCreated, message)
}

// GetConversation returns the message history between the
// authenticated user and the user named by the userId query
// parameter, ascending by creation time. A token whose subject has no
// user record is rejected before the store is queried.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userUUID := userID.(uuid.UUID)

	if _, err := h.DB.GetUserByID(userUUID); err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	otherUserID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	messages, err := h.DB.GetConversation(userUUID, otherUserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, messages)
}
