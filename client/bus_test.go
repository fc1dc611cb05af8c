package client

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PreservesPublishOrder(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe()
	defer cancel()

	const n = 100
	go func() {
		for i := range n {
			_ = b.Publish(context.Background(), Event{Kind: KindPresence, SessionID: strconv.Itoa(i)})
		}
	}()

	for i := range n {
		select {
		case ev := <-ch:
			require.Equal(t, strconv.Itoa(i), ev.SessionID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBus_FiltersByKind(t *testing.T) {
	b := NewBus()
	msgs, cancelMsgs := b.Subscribe(KindMessage)
	defer cancelMsgs()
	all, cancelAll := b.Subscribe()
	defer cancelAll()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, Event{Kind: KindPresence}))
	require.NoError(t, b.Publish(ctx, Event{Kind: KindMessage}))

	assert.Equal(t, KindMessage, (<-msgs).Kind)
	assert.Empty(t, msgs)

	assert.Equal(t, KindPresence, (<-all).Kind)
	assert.Equal(t, KindMessage, (<-all).Kind)
}

func TestBus_CancelReleasesBlockedPublisher(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe()

	ctx := context.Background()
	for range subscriberBuffer {
		require.NoError(t, b.Publish(ctx, Event{Kind: KindPresence}))
	}

	done := make(chan error, 1)
	go func() { done <- b.Publish(ctx, Event{Kind: KindPresence}) }()

	select {
	case <-done:
		t.Fatal("publish should block on a full subscriber")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish still blocked after cancel")
	}
}

func TestBus_PublishHonorsContext(t *testing.T) {
	b := NewBus()
	_, cancel := b.Subscribe()
	defer cancel()

	for range subscriberBuffer {
		require.NoError(t, b.Publish(context.Background(), Event{Kind: KindPresence}))
	}

	ctx, stop := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer stop()
	require.ErrorIs(t, b.Publish(ctx, Event{Kind: KindPresence}), context.DeadlineExceeded)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "connected", KindConnected.String())
	assert.Equal(t, "connect_error", KindConnectError.String())
	assert.Equal(t, "disconnected", KindDisconnected.String())
	assert.Equal(t, "unknown", Kind(0).String())
}
