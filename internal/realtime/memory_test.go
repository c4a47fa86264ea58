package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Value string `json:"value"`
}

// receiveEvent waits briefly for one event on the subscription.
func receiveEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// assertNoEvent asserts nothing arrives on the subscription.
func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryBrokerPublishDelivers(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	sub, err := broker.NewSubscriber().Subscribe(ctx, "room-1")
	require.NoError(t, err)

	err = broker.Publish(ctx, "room-1", EventNewMessage, testPayload{Value: "hello"})
	require.NoError(t, err)

	ev := receiveEvent(t, sub)
	assert.Equal(t, "room-1", ev.Channel)
	assert.Equal(t, EventNewMessage, ev.Name)

	var payload testPayload
	require.NoError(t, json.Unmarshal(ev.Data, &payload))
	assert.Equal(t, "hello", payload.Value)
}

func TestMemoryBrokerChannelIsolation(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	sub, err := broker.NewSubscriber().Subscribe(ctx, "room-1")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "room-2", EventNewMessage, testPayload{Value: "elsewhere"}))

	assertNoEvent(t, sub)
}

func TestMemoryBrokerIdempotentSubscribe(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()
	subscriber := broker.NewSubscriber()

	first, err := subscriber.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	second, err := subscriber.Subscribe(ctx, "room-1")
	require.NoError(t, err)

	// Same subscription handle, so one publish yields one event.
	assert.Same(t, first, second)

	require.NoError(t, broker.Publish(ctx, "room-1", EventNewMessage, testPayload{Value: "once"}))

	receiveEvent(t, first)
	assertNoEvent(t, first)
}

func TestMemoryBrokerIndependentSubscribers(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	subA, err := broker.NewSubscriber().Subscribe(ctx, "room-1")
	require.NoError(t, err)
	subB, err := broker.NewSubscriber().Subscribe(ctx, "room-1")
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, "room-1", EventNewMessage, testPayload{Value: "fanout"}))

	receiveEvent(t, subA)
	receiveEvent(t, subB)
}

func TestMemoryBrokerCloseStopsDelivery(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()

	sub, err := broker.NewSubscriber().Subscribe(ctx, "room-1")
	require.NoError(t, err)

	sub.Close()
	// Closing again is a no-op.
	sub.Close()

	require.NoError(t, broker.Publish(ctx, "room-1", EventNewMessage, testPayload{Value: "late"}))
	assertNoEvent(t, sub)
}

func TestMemoryBrokerResubscribeAfterClose(t *testing.T) {
	broker := NewMemoryBroker()
	ctx := context.Background()
	subscriber := broker.NewSubscriber()

	first, err := subscriber.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	first.Close()

	second, err := subscriber.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	require.NoError(t, broker.Publish(ctx, "room-1", EventNewMessage, testPayload{Value: "back"}))
	receiveEvent(t, second)
}

func TestMemoryBrokerPublishWithoutSubscribers(t *testing.T) {
	broker := NewMemoryBroker()

	// No subscribers connected: delivery is best-effort, publishing
	// still succeeds.
	err := broker.Publish(context.Background(), "empty-room", EventNewMessage, testPayload{Value: "void"})
	assert.NoError(t, err)
}
