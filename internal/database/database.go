package database

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jafarnz/tpconnect/internal/models"
)

// HistoryLimit bounds conversation reads to the newest N messages.
// Older messages are dropped from the response rather than growing the
// payload without bound; the returned slice is still ascending.
const HistoryLimit = 200

type DBInterface interface {
	// User methods
	GetUserByID(id uuid.UUID) (*models.User, error)

	// Message methods
	CreateMessage(senderID, receiverID uuid.UUID, content string) (*models.Message, error)
	GetConversation(userID1, userID2 uuid.UUID) ([]*models.Message, error)

	Close() error
}

type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgres"
	InMemory   DatabaseType = "memory"
)

func NewDatabase(dbType DatabaseType, connStr string) (DBInterface, error) {
	switch dbType {
	case PostgreSQL:
		return NewPostgresDB(connStr)
	case InMemory:
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
