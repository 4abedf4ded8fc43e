package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for event")
		return Event{}
	}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "channel:general", Topic("general"))
}

func TestMemoryPublishOrder(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(Options{Buffer: 16})

	first, err := b.Subscribe(ctx, Topic("general"))
	require.NoError(t, err)
	defer first.Close()
	second, err := b.Subscribe(ctx, Topic("general"))
	require.NoError(t, err)
	defer second.Close()

	for i := 0; i < 5; i++ {
		ev, err := NewEvent("message.created", map[string]int{"id": i})
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, Topic("general"), ev))
	}

	for _, sub := range []Subscription{first, second} {
		for i := 0; i < 5; i++ {
			ev := recv(t, sub)
			assert.Equal(t, "message.created", ev.Type)
			assert.JSONEq(t, fmt.Sprintf(`{"id":%d}`, i), string(ev.Payload))
		}
	}
}

func TestMemoryTopicIsolation(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(Options{})

	sub, err := b.Subscribe(ctx, Topic("a"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, b.Publish(ctx, Topic("b"), Event{Type: "message.created"}))
	require.NoError(t, b.Publish(ctx, Topic("a"), Event{Type: "message.deleted"}))

	assert.Equal(t, "message.deleted", recv(t, sub).Type)
}

func TestMemoryDropsOnFullBuffer(t *testing.T) {
	ctx := context.Background()
	var drops atomic.Int64
	b := NewMemory(Options{Buffer: 1, OnDrop: func(string) { drops.Add(1) }})

	slow, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	defer slow.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Publish(ctx, "t", Event{Type: fmt.Sprintf("e%d", i)}))
	}

	assert.Equal(t, int64(2), drops.Load())
	assert.Equal(t, "e0", recv(t, slow).Type)

	// once drained, the subscriber keeps receiving in order
	require.NoError(t, b.Publish(ctx, "t", Event{Type: "e3"}))
	assert.Equal(t, "e3", recv(t, slow).Type)
	assert.Equal(t, int64(2), drops.Load())
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(Options{})

	sub, err := b.Subscribe(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers("t"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Equal(t, 0, b.Subscribers("t"))

	_, ok := <-sub.Events()
	assert.False(t, ok, "events channel should be closed")

	// publishing to a topic without subscribers is a no-op
	require.NoError(t, b.Publish(ctx, "t", Event{Type: "x"}))
}

func TestMemoryConcurrentPublishAndClose(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(Options{Buffer: 4})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			_ = b.Publish(ctx, "t", Event{Type: "x"})
		}
	}()

	for i := 0; i < 100; i++ {
		sub, err := b.Subscribe(ctx, "t")
		require.NoError(t, err)
		require.NoError(t, sub.Close())
	}
	<-done
}
