package models

import (
	"time"

	"github.com/google/uuid"
)

// Message represents a chat message in the system. The ID is a
// server-assigned string; a message is immutable once persisted.
type Message struct {
	ID         string       `json:"id"`
	SenderID   uuid.UUID    `json:"sender_id"`
	ReceiverID uuid.UUID    `json:"receiver_id"`
	Content    string       `json:"content"`
	CreatedAt  time.Time    `json:"created_at"`
	Sender     *UserSummary `json:"sender,omitempty"`
}

// MessageRequest is the structure for message creation requests
type MessageRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
	Content    string    `json:"content" binding:"required,min=1"`
}
