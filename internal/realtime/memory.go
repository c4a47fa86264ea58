package realtime

import (
	"context"
	"sync"
)

// MemoryBroker is an in-process Broker used in development mode and
// tests. Events fan out to every attached subscription of a channel;
// a full subscription buffer drops the event rather than blocking the
// publisher.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	ev := Event{Channel: channel, Name: event, Data: data}

	b.mu.Lock()
	targets := make([]*Subscription, 0, len(b.subs[channel]))
	for sub := range b.subs[channel] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.events <- ev:
		default:
		}
	}
	return nil
}

// NewSubscriber returns a fresh subscriber identity bound to this broker.
func (b *MemoryBroker) NewSubscriber() Subscriber {
	return &memorySubscriber{
		broker: b,
		subs:   make(map[string]*Subscription),
	}
}

// SubscriberCount reports how many subscriptions a channel currently
// has (channel occupancy).
func (b *MemoryBroker) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}

func (b *MemoryBroker) attach(channel string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
}

func (b *MemoryBroker) detach(channel string, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs[channel], sub)
	if len(b.subs[channel]) == 0 {
		delete(b.subs, channel)
	}
}

type memorySubscriber struct {
	broker *MemoryBroker
	mu     sync.Mutex
	subs   map[string]*Subscription
}

func (s *memorySubscriber) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[channel]; ok {
		return sub, nil
	}

	var sub *Subscription
	sub = newSubscription(channel, subscriptionBuffer, func() {
		s.broker.detach(channel, sub)

		s.mu.Lock()
		delete(s.subs, channel)
		s.mu.Unlock()
	})

	s.broker.attach(channel, sub)
	s.subs[channel] = sub
	return sub, nil
}
