package database

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jafarnz/tpconnect/internal/models"
)

// MemoryDB is an in-memory DBInterface implementation used in
// development mode and tests. Messages are kept per unordered pair in
// append order; timestamps are forced non-decreasing so append order
// and created_at order agree.
type MemoryDB struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	messages map[string][]*models.Message
	lastTime time.Time
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:    make(map[uuid.UUID]*models.User),
		messages: make(map[string][]*models.Message),
	}
}

// AddUser registers a user record. Not part of DBInterface; the user
// lifecycle is owned elsewhere, this only seeds the store.
func (db *MemoryDB) AddUser(user *models.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[user.ID] = user
}

func (db *MemoryDB) GetUserByID(id uuid.UUID) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	user, ok := db.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (db *MemoryDB) CreateMessage(senderID, receiverID uuid.UUID, content string) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	sender, ok := db.users[senderID]
	if !ok {
		return nil, ErrUserNotFound
	}

	now := time.Now().UTC()
	if now.Before(db.lastTime) {
		now = db.lastTime
	}
	db.lastTime = now

	message := &models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  now,
		Sender:     sender.Summary(),
	}

	key := pairKey(senderID, receiverID)
	db.messages[key] = append(db.messages[key], message)

	return message, nil
}

func (db *MemoryDB) GetConversation(userID1, userID2 uuid.UUID) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := db.messages[pairKey(userID1, userID2)]
	start := 0
	if len(stored) > HistoryLimit {
		start = len(stored) - HistoryLimit
	}

	messages := make([]*models.Message, 0, len(stored)-start)
	for _, msg := range stored[start:] {
		copied := *msg
		if sender, ok := db.users[msg.SenderID]; ok {
			copied.Sender = sender.Summary()
		}
		messages = append(messages, &copied)
	}

	return messages, nil
}

func (db *MemoryDB) Close() error {
	return nil
}

// pairKey builds an order-independent map key for a user pair.
func pairKey(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if second < first {
		first, second = second, first
	}
	return strings.Join([]string{first, second}, ":")
}
