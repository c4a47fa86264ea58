package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a user in the chat system
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSummary is the minimal sender view denormalized into message
// records, captured from the current user record at read time.
type UserSummary struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Summary returns the display projection of the user.
func (u *User) Summary() *UserSummary {
	return &UserSummary{Name: u.Name, AvatarURL: u.AvatarURL}
}
