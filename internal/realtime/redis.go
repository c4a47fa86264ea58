package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jafarnz/tpconnect/internal/logger"
)

var log = logger.New("realtime")

// RedisBroker implements Broker and SubscriberSource over Redis
// pub/sub. Events are published as JSON envelopes on the channel name
// itself; Redis pub/sub has no backlog, which matches the adapter
// contract.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(addr, password string, db int) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBroker{client: client}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, channel, event string, payload interface{}) error {
	data, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	envelope, err := json.Marshal(Event{Channel: channel, Name: event, Data: data})
	if err != nil {
		return err
	}

	return b.client.Publish(ctx, channel, envelope).Err()
}

// NewSubscriber returns a fresh subscriber identity with its own
// underlying Redis subscriptions.
func (b *RedisBroker) NewSubscriber() Subscriber {
	return &redisSubscriber{
		client: b.client,
		subs:   make(map[string]*Subscription),
	}
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

type redisSubscriber struct {
	client *redis.Client
	mu     sync.Mutex
	subs   map[string]*Subscription
}

func (s *redisSubscriber) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subs[channel]; ok {
		return sub, nil
	}

	pubsub := s.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	var sub *Subscription
	sub = newSubscription(channel, subscriptionBuffer, func() {
		if err := pubsub.Close(); err != nil {
			log.Warn("closing subscription to %s: %v", channel, err)
		}

		s.mu.Lock()
		delete(s.subs, channel)
		s.mu.Unlock()
	})

	go forward(pubsub, sub)

	s.subs[channel] = sub
	return sub, nil
}

// forward decodes envelopes off the Redis subscription and delivers
// them until the subscription closes.
func forward(pubsub *redis.PubSub, sub *Subscription) {
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn("dropping malformed event on %s: %v", msg.Channel, err)
				continue
			}
			if ev.Channel == "" {
				ev.Channel = msg.Channel
			}

			select {
			case sub.events <- ev:
			default:
				log.Warn("subscriber lagging on %s, dropping event %q", ev.Channel, ev.Name)
			}
		case <-sub.done:
			return
		}
	}
}
