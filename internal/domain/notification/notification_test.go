package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/protocol"
)

type recordingSink struct {
	got []*Notification
	err error
}

func (r *recordingSink) Publish(_ context.Context, n *Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestNew(t *testing.T) {
	id := uuid.New()
	n := New(protocol.TypeBid, id, "bid-hash", "pbuyer", "pseller", "listing-hash")

	require.NotNil(t, n)
	assert.NotEqual(t, uuid.Nil, n.NotificationID)
	assert.Equal(t, id, n.ObjectID)
	assert.Equal(t, protocol.TypeBid, n.Event)
	assert.Equal(t, "listing-hash", n.Target)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestFanout(t *testing.T) {
	ok := &recordingSink{}
	broken := &recordingSink{err: errors.New("redis down")}
	n := New(protocol.TypeVote, uuid.New(), "vote", "a", "b", "proposal")

	err := Fanout{ok, nil, broken}.Publish(context.Background(), n)

	assert.ErrorContains(t, err, "redis down")
	assert.Len(t, ok.got, 1)
	assert.Len(t, broken.got, 1)
}

func TestSubscriberFilters(t *testing.T) {
	n := New(protocol.TypeBidAccept, uuid.New(), "h", "pseller", "pbuyer", "listing")

	t.Run("match all", func(t *testing.T) {
		assert.True(t, NewSubscriber("s1", nil, nil).Wants(n))
	})

	t.Run("event filter", func(t *testing.T) {
		assert.False(t, NewSubscriber("s2", nil, []protocol.ActionType{protocol.TypeBid}).Wants(n))
		assert.True(t, NewSubscriber("s3", nil, []protocol.ActionType{protocol.TypeBidAccept}).Wants(n))
	})

	t.Run("address filter", func(t *testing.T) {
		assert.True(t, NewSubscriber("s4", []string{"pbuyer"}, nil).Wants(n))
		assert.False(t, NewSubscriber("s5", []string{"pother"}, nil).Wants(n))
	})
}
