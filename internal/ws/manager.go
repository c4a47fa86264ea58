package ws

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jafarnz/tpconnect/internal/logger"
	"github.com/jafarnz/tpconnect/internal/realtime"
)

var log = logger.New("ws")

// Manager maintains the set of active gateway connections. Each
// connection owns its own broker subscriber; the manager only tracks
// lifecycle.
type Manager struct {
	source realtime.SubscriberSource

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex
}

// NewManager creates a new gateway manager on top of a broker
// subscriber source.
func NewManager(source realtime.SubscriberSource) *Manager {
	return &Manager{
		source:     source,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the manager loop. Call this in a goroutine.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client] = struct{}{}
			log.Info("Client connected: %s (%d total)", client.UserID, len(m.clients))
			m.mutex.Unlock()
		case client := <-m.unregister:
			m.mutex.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				log.Info("Client disconnected: %s (%d total)", client.UserID, len(m.clients))
			}
			m.mutex.Unlock()
		}
	}
}

// HandleWebSocket upgrades an authenticated request to a gateway
// connection.
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// TODO: restrict to ALLOWED_ORIGINS once the frontend host is fixed
			return true
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := newClient(userUUID, conn, m.source.NewSubscriber())

	m.register <- client

	go client.readPump(m)
	go client.writePump()
}
