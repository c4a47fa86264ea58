// Package client implements the conversation-side state machine used
// by frontends: history loading, optimistic sends reconciled against
// the server response, and realtime merging with echo/duplicate
// suppression.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jafarnz/tpconnect/internal/logger"
	"github.com/jafarnz/tpconnect/internal/models"
	"github.com/jafarnz/tpconnect/internal/realtime"
)

var log = logger.New("client")

// ErrNoConversation is returned by Send when no conversation is open.
var ErrNoConversation = errors.New("no conversation open")

// tempIDPrefix marks client-fabricated optimistic ids. Server ids are
// bare UUID strings, so the prefix can never collide with one.
const tempIDPrefix = "temp-"

func newTempID() string {
	return tempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id is a client-side optimistic id rather
// than a server-assigned one.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// MessageAPI is the server contract the controller talks to.
type MessageAPI interface {
	Conversation(ctx context.Context, otherUserID uuid.UUID) ([]*models.Message, error)
	Send(ctx context.Context, receiverID uuid.UUID, content string) (*models.Message, error)
}

// Controller manages the state of one open conversation view. It is
// safe for concurrent use: realtime events arrive on the consumer
// goroutine while Send runs on the caller's.
type Controller struct {
	selfID     uuid.UUID
	self       models.UserSummary
	api        MessageAPI
	subscriber realtime.Subscriber

	mu       sync.Mutex
	otherID  uuid.UUID
	messages []*models.Message
	sub      *realtime.Subscription
	draft    string
}

// NewController creates a controller for the given user identity.
func NewController(selfID uuid.UUID, self models.UserSummary, api MessageAPI, subscriber realtime.Subscriber) *Controller {
	return &Controller{
		selfID:     selfID,
		self:       self,
		api:        api,
		subscriber: subscriber,
	}
}

// Open loads the conversation with otherUserID and binds to its
// realtime channel. Any previously open conversation is closed first;
// the controller holds at most one subscription. On a failed history
// fetch the local message list is left empty and no subscription is
// made.
func (c *Controller) Open(ctx context.Context, otherUserID uuid.UUID) error {
	c.Close()

	history, err := c.api.Conversation(ctx, otherUserID)
	if err != nil {
		c.mu.Lock()
		c.otherID = uuid.Nil
		c.messages = nil
		c.mu.Unlock()
		return err
	}

	sub, err := c.subscriber.Subscribe(ctx, realtime.ChannelName(c.selfID, otherUserID))
	if err != nil {
		c.mu.Lock()
		c.otherID = uuid.Nil
		c.messages = nil
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.otherID = otherUserID
	c.messages = history
	c.sub = sub
	c.mu.Unlock()

	go c.consume(sub)
	return nil
}

// Close unsubscribes from the current conversation channel, if any.
func (c *Controller) Close() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Send appends an optimistic message immediately, then issues the
// server call. On success the optimistic entry is replaced in place by
// the canonical record; on failure it is removed and the content is
// restored into the draft for a manual retry. Concurrent sends each
// carry their own temporary id and reconcile independently.
func (c *Controller) Send(ctx context.Context, content string) (*models.Message, error) {
	c.mu.Lock()
	if c.otherID == uuid.Nil {
		c.mu.Unlock()
		return nil, ErrNoConversation
	}
	receiverID := c.otherID

	optimistic := &models.Message{
		ID:         newTempID(),
		SenderID:   c.selfID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now(),
		Sender:     &c.self,
	}
	c.messages = append(c.messages, optimistic)
	c.draft = ""
	c.mu.Unlock()

	canonical, err := c.api.Send(ctx, receiverID, content)
	if err != nil {
		c.mu.Lock()
		c.remove(optimistic.ID)
		c.draft = content
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	c.replace(optimistic.ID, canonical)
	c.mu.Unlock()
	return canonical, nil
}

// Messages returns a snapshot of the conversation, ascending by
// creation time.
func (c *Controller) Messages() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make([]*models.Message, len(c.messages))
	copy(snapshot, c.messages)
	return snapshot
}

// Draft returns the compose text restored by a failed send.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Controller) consume(sub *realtime.Subscription) {
	for {
		select {
		case ev := <-sub.Events():
			if ev.Name != realtime.EventNewMessage {
				continue
			}
			msg, err := decodeMessage(ev.Data)
			if err != nil {
				log.Warn("Dropping malformed event on %s: %v", sub.Channel(), err)
				continue
			}
			c.merge(msg)
		case <-sub.Done():
			return
		}
	}
}

// merge folds a realtime message into local state. The sender's own
// echo is dropped outright: that message went through the optimistic
// path already, and the HTTP response and the broker event race in
// either order. Everything else is deduplicated by id.
func (c *Controller) merge(msg *models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.SenderID == c.selfID {
		return
	}
	// A residual event from a previously open conversation must not
	// bleed into the current one.
	if msg.SenderID != c.otherID {
		return
	}
	for _, existing := range c.messages {
		if existing.ID == msg.ID {
			return
		}
	}
	c.messages = append(c.messages, msg)
}

// remove deletes the message with the given id. Caller holds c.mu.
func (c *Controller) remove(id string) {
	for i, msg := range c.messages {
		if msg.ID == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

// replace swaps the message with the given id for the canonical
// record, preserving its position. Caller holds c.mu.
func (c *Controller) replace(id string, canonical *models.Message) {
	for i, msg := range c.messages {
		if msg.ID == id {
			c.messages[i] = canonical
			return
		}
	}
}

// decodeMessage validates an incoming realtime payload before it is
// merged into local state.
func decodeMessage(data json.RawMessage) (*models.Message, error) {
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, errors.New("missing message id")
	}
	if msg.SenderID == uuid.Nil {
		return nil, errors.New("missing sender id")
	}
	if msg.Content == "" {
		return nil, errors.New("missing content")
	}
	return &msg, nil
}
