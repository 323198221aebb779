package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBrokerPublish(t *testing.T) {
	t.Parallel()

	broker := NewBroker[string]()
	defer broker.Shutdown()

	ch := broker.Subscribe(context.Background())
	require.Equal(t, 1, broker.SubscriberCount())

	broker.Publish(CreatedEvent, "hello")

	select {
	case ev := <-ch:
		require.Equal(t, CreatedEvent, ev.Type)
		require.Equal(t, "hello", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestBrokerUnsubscribeOnContextCancel(t *testing.T) {
	t.Parallel()

	broker := NewBroker[int]()
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	cancel()

	// The channel closes once the unsubscribe goroutine runs.
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	require.Eventually(t, func() bool {
		return broker.SubscriberCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBrokerShutdown(t *testing.T) {
	t.Parallel()

	broker := NewBroker[int]()
	ch := broker.Subscribe(context.Background())

	broker.Shutdown()
	broker.Shutdown() // idempotent

	_, ok := <-ch
	require.False(t, ok)
	require.Equal(t, 0, broker.SubscriberCount())

	// Publishing after shutdown is a no-op, and new subscriptions come back
	// already closed.
	broker.Publish(UpdatedEvent, 1)
	late := broker.Subscribe(context.Background())
	_, ok = <-late
	require.False(t, ok)
}

func TestBrokerDropsWhenFull(t *testing.T) {
	t.Parallel()

	broker := NewBroker[int]()
	defer broker.Shutdown()

	ch := broker.Subscribe(context.Background())
	for i := 0; i < bufferSize+10; i++ {
		broker.Publish(UpdatedEvent, i)
	}
	// Exactly the buffer survives; the overflow was dropped, not blocked on.
	require.Len(t, ch, bufferSize)
}
