package sse

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/domain/notification"
	"github.com/p2pmarket/marketd/internal/protocol"
)

func TestHub_PublishFilters(t *testing.T) {
	h := NewHub()
	buyer := notification.NewSubscriber("buyer", []string{"pbuyer"}, nil)
	other := notification.NewSubscriber("other", []string{"pother"}, nil)
	h.Subscribe(buyer)
	h.Subscribe(other)
	require.Equal(t, 2, h.Count())

	n := notification.New(protocol.TypeBidAccept, uuid.New(), "h", "pseller", "pbuyer", "listing")
	require.NoError(t, h.Publish(context.Background(), n))

	select {
	case got := <-buyer.C:
		assert.Equal(t, n.NotificationID, got.NotificationID)
	default:
		t.Fatal("buyer did not receive the notification")
	}
	assert.Len(t, other.C, 0)
}

func TestHub_FullChannel(t *testing.T) {
	h := NewHub()
	s := &notification.Subscriber{ID: "slow", C: make(chan *notification.Notification, 1)}
	h.Subscribe(s)
	n := notification.New(protocol.TypeVote, uuid.New(), "v", "a", "b", "p")

	require.NoError(t, h.Publish(context.Background(), n))
	assert.ErrorIs(t, h.Publish(context.Background(), n), notification.ErrChannelFull)
	assert.ErrorIs(t, h.SendTo("slow", n), notification.ErrChannelFull)
	assert.ErrorIs(t, h.SendTo("missing", n), notification.ErrSubscriberNotFound)
}

func TestHub_UnsubscribeAndStop(t *testing.T) {
	h := NewHub()
	a := notification.NewSubscriber("a", nil, nil)
	b := notification.NewSubscriber("b", nil, nil)
	h.Subscribe(a)
	h.Subscribe(b)

	h.Unsubscribe("a")
	_, open := <-a.C
	assert.False(t, open)
	assert.Equal(t, 1, h.Count())

	h.Stop()
	_, open = <-b.C
	assert.False(t, open)
	assert.Zero(t, h.Count())
}
