package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// Event names carried on conversation channels.
const (
	EventNewMessage = "new-message"
)

// Event is the tagged envelope delivered to channel subscribers.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// Broker publishes events to named channels. Delivery is best-effort
// to current subscribers only; there is no backlog or replay, and a
// publish is attempted at most once. The durable store, not the
// broker, is the source of truth.
type Broker interface {
	Publish(ctx context.Context, channel, event string, payload interface{}) error
}

// Subscriber binds clients to channels. Subscribing to a channel the
// client already holds returns the existing subscription rather than
// a second event stream.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
}

// SubscriberSource creates independent subscriber identities, one per
// connected client. Idempotent re-subscription is scoped to a single
// Subscriber; two subscribers on the same channel each get their own
// event stream.
type SubscriberSource interface {
	NewSubscriber() Subscriber
}

// subscriptionBuffer bounds the per-subscription event backlog. A
// subscriber that falls this far behind starts losing events; missed
// realtime events are recoverable from the durable history.
const subscriptionBuffer = 16

// Subscription is a live binding to one channel. Events arrive on
// Events until Close; Close is idempotent.
type Subscription struct {
	channel     string
	events      chan Event
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
}

func newSubscription(channel string, buffer int, unsubscribe func()) *Subscription {
	return &Subscription{
		channel:     channel,
		events:      make(chan Event, buffer),
		done:        make(chan struct{}),
		unsubscribe: unsubscribe,
	}
}

// Channel returns the channel name this subscription is bound to.
func (s *Subscription) Channel() string {
	return s.channel
}

// Events returns the stream of events for the channel. The channel
// itself is never closed; consumers select on Done to observe
// shutdown.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.unsubscribe()
	})
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return data, nil
}
