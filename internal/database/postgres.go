package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jafarnz/tpconnect/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

type PostgresDB struct {
	*sql.DB
}

func NewPostgresDB(connStr string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDB{db}, nil
}

func (db *PostgresDB) GetUserByID(id uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.QueryRow(`
		SELECT id, name, email, COALESCE(avatar_url, ''), created_at
		FROM users WHERE id = $1`,
		id).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.AvatarURL,
		&user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (db *PostgresDB) CreateMessage(senderID, receiverID uuid.UUID, content string) (*models.Message, error) {
	sender, err := db.GetUserByID(senderID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
		Sender:     sender.Summary(),
	}

	_, err = db.Exec(
		"INSERT INTO messages (id, sender_id, receiver_id, content, created_at) VALUES ($1, $2, $3, $4, $5)",
		message.ID, message.SenderID, message.ReceiverID, message.Content, message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return message, nil
}

// GetConversation returns messages between two users in either
// direction, ascending by creation time. Bounded to the newest
// HistoryLimit rows; the inner query selects them, the outer one
// restores ascending order.
func (db *PostgresDB) GetConversation(userID1, userID2 uuid.UUID) ([]*models.Message, error) {
	rows, err := db.Query(
		`SELECT id, sender_id, receiver_id, content, created_at, sender_name, sender_avatar FROM (
			SELECT m.id, m.sender_id, m.receiver_id, m.content, m.created_at,
			       u.name AS sender_name, COALESCE(u.avatar_url, '') AS sender_avatar
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)
			ORDER BY m.created_at DESC
			LIMIT $3
		) newest
		ORDER BY created_at ASC`,
		userID1, userID2, HistoryLimit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		var msg models.Message
		var sender models.UserSummary

		err := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt,
			&sender.Name, &sender.AvatarURL)
		if err != nil {
			return nil, err
		}

		msg.Sender = &sender
		messages = append(messages, &msg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

func (db *PostgresDB) Close() error {
	return db.DB.Close()
}
