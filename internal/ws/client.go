package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jafarnz/tpconnect/internal/realtime"
)

// Frame types accepted from the client
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// Frame is the control message a client sends to manage its channel
// subscriptions.
type Frame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

// errorFrame is sent back to the client on protocol errors.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Client represents a connected gateway client. It holds one broker
// subscription per channel the client has asked for; every event on
// those channels is forwarded to the socket as-is.
type Client struct {
	UserID     uuid.UUID
	socket     *websocket.Conn
	send       chan []byte
	done       chan struct{}
	subscriber realtime.Subscriber

	mu   sync.Mutex
	subs map[string]*realtime.Subscription
}

func newClient(userID uuid.UUID, conn *websocket.Conn, subscriber realtime.Subscriber) *Client {
	return &Client{
		UserID:     userID,
		socket:     conn,
		send:       make(chan []byte, 256),
		done:       make(chan struct{}),
		subscriber: subscriber,
		subs:       make(map[string]*realtime.Subscription),
	}
}

// subscribe binds the client to a channel. Subscribing to a channel
// the client already holds is a no-op, so repeated frames never
// duplicate delivery.
func (c *Client) subscribe(channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[channel]; ok {
		return nil
	}

	sub, err := c.subscriber.Subscribe(context.Background(), channel)
	if err != nil {
		return err
	}

	c.subs[channel] = sub
	go c.forward(sub)
	return nil
}

// unsubscribe drops the client's binding to a channel; a no-op when
// not subscribed.
func (c *Client) unsubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[channel]; ok {
		sub.Close()
		delete(c.subs, channel)
	}
}

func (c *Client) closeSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for channel, sub := range c.subs {
		sub.Close()
		delete(c.subs, channel)
	}
}

// forward relays broker events for one subscription to the socket.
func (c *Client) forward(sub *realtime.Subscription) {
	for {
		select {
		case ev := <-sub.Events():
			data, err := json.Marshal(ev)
			if err != nil {
				log.Error("Error marshaling event on %s: %v", sub.Channel(), err)
				continue
			}
			select {
			case c.send <- data:
			default:
				log.Warn("Client %s lagging, dropping event on %s", c.UserID, sub.Channel())
			}
		case <-sub.Done():
			return
		}
	}
}

func (c *Client) sendError(message string) {
	data, _ := json.Marshal(errorFrame{Type: "error", Message: message})
	select {
	case c.send <- data:
	default:
	}
}

// readPump pumps subscription frames from the websocket connection.
func (c *Client) readPump(m *Manager) {
	defer func() {
		c.closeSubscriptions()
		close(c.done)
		m.unregister <- c
		c.socket.Close()
	}()

	c.socket.SetReadLimit(64 * 1024)
	c.socket.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.socket.SetPongHandler(func(string) error {
		c.socket.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.UserID, err)
			} else {
				log.Info("Client %s closed connection: %v", c.UserID, err)
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Error("Error unmarshaling frame from %s: %v", c.UserID, err)
			c.sendError("Invalid frame format")
			continue
		}

		if frame.Channel == "" {
			c.sendError("Channel is required")
			continue
		}

		switch frame.Type {
		case FrameSubscribe:
			if err := c.subscribe(frame.Channel); err != nil {
				log.Error("Subscribe to %s failed for %s: %v", frame.Channel, c.UserID, err)
				c.sendError("Subscription failed")
			}
		case FrameUnsubscribe:
			c.unsubscribe(frame.Channel)
		default:
			log.Warn("Unknown frame type %q from client %s", frame.Type, c.UserID)
			c.sendError("Unknown frame type")
		}
	}
}

// writePump pumps queued events to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
