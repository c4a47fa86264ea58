package database

import (
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jafarnz/tpconnect/internal/models"
)

// setupTestDB creates a test database connection. Requires the schema
// from migrations/001_init.sql to be applied.
func setupTestDB(t *testing.T) *PostgresDB {
	connStr := os.Getenv("TEST_DATABASE_URL")
	if connStr == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := NewPostgresDB(connStr)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean up test data
	if _, err := db.Exec("DELETE FROM messages"); err != nil {
		t.Fatalf("Failed to clean up messages: %v", err)
	}
	if _, err := db.Exec("DELETE FROM users"); err != nil {
		t.Fatalf("Failed to clean up users: %v", err)
	}

	return db
}

func insertTestUser(t *testing.T, db *PostgresDB, name string) *models.User {
	user := &models.User{
		ID:    uuid.New(),
		Name:  name,
		Email: name + "@example.com",
	}
	_, err := db.Exec(
		"INSERT INTO users (id, name, email, created_at) VALUES ($1, $2, $3, NOW())",
		user.ID, user.Name, user.Email,
	)
	require.NoError(t, err)
	return user
}

func TestPostgresGetUserByID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	alice := insertTestUser(t, db, "alice")

	user, err := db.GetUserByID(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Name)

	_, err = db.GetUserByID(uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresCreateMessage(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	alice := insertTestUser(t, db, "alice")
	bob := insertTestUser(t, db, "bob")

	msg, err := db.CreateMessage(alice.ID, bob.ID, "hello bob")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello bob", msg.Content)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "alice", msg.Sender.Name)

	_, err = db.CreateMessage(uuid.New(), bob.ID, "from nowhere")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPostgresGetConversation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	alice := insertTestUser(t, db, "alice")
	bob := insertTestUser(t, db, "bob")

	empty, err := db.GetConversation(alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = db.CreateMessage(alice.ID, bob.ID, "first")
	require.NoError(t, err)
	_, err = db.CreateMessage(bob.ID, alice.ID, "second")
	require.NoError(t, err)

	messages, err := db.GetConversation(alice.ID, bob.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, "bob", messages[1].Sender.Name)

	// Pair lookup is symmetric.
	reversed, err := db.GetConversation(bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, reversed, 2)
	assert.Equal(t, messages[0].ID, reversed[0].ID)
}
