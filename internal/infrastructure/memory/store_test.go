package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.InTx(ctx, "order:b1", func(ctx context.Context, tx store.Repositories) error {
		root := bid.NewRoot("b1", "m1", "pbuyer", "l1", protocol.DirectionIncoming, nil, time.Now())
		require.NoError(t, tx.Bids().Create(ctx, root))
		o, it := order.New("b1", "l1", "pbuyer", "pseller")
		require.NoError(t, tx.Orders().Create(ctx, o, it))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Bids().GetByHash(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, got)
	item, err := s.Orders().GetItemByBidHash(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestChainOrdering(t *testing.T) {
	ctx := context.Background()
	s := New()
	root := bid.NewRoot("b1", "m1", "pbuyer", "l1", protocol.DirectionOutgoing, nil, time.Now())
	require.NoError(t, s.Bids().Create(ctx, root))
	accept := bid.NewStep(protocol.TypeBidAccept, "a1", "m2", protocol.DirectionIncoming, root, nil, time.Now())
	require.NoError(t, s.Bids().Create(ctx, accept))
	lock := bid.NewStep(protocol.TypeEscrowLock, "k1", "m3", protocol.DirectionOutgoing, accept, nil, time.Now())
	require.NoError(t, s.Bids().Create(ctx, lock))

	chain, err := s.Bids().ListByChain(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "b1", chain[0].Hash)
	assert.Equal(t, "k1", bid.Last(chain).Hash)
	assert.Equal(t, "a1", bid.Last(chain).ParentHash)

	assert.ErrorIs(t, s.Bids().Create(ctx, root), ErrDuplicate)
	n, err := s.Bids().CountByListing(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEnvelopeSelection(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	add := func(id string, status envelope.Status, retryable bool, expires time.Time) {
		require.NoError(t, s.Envelopes().Create(ctx, &envelope.Envelope{
			MsgID: id, Direction: protocol.DirectionIncoming, Status: status,
			Retryable: retryable, ReceivedAt: now, ExpiresAt: expires,
		}))
	}
	add("received", envelope.StatusReceived, false, now.Add(time.Hour))
	add("waiting", envelope.StatusWaiting, false, now.Add(time.Hour))
	add("failed-hard", envelope.StatusProcessingFailed, false, now.Add(time.Hour))
	add("failed-soft", envelope.StatusProcessingFailed, true, now.Add(time.Hour))
	add("done", envelope.StatusProcessed, false, now.Add(time.Hour))
	add("stale", envelope.StatusWaiting, false, now.Add(-time.Minute))

	due, err := s.Envelopes().ListProcessable(ctx, now, 3, 10)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, e := range due {
		ids[e.MsgID] = true
	}
	assert.Equal(t, map[string]bool{"received": true, "waiting": true, "failed-soft": true}, ids)

	n, err := s.Envelopes().ExpireStale(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	stale, err := s.Envelopes().GetByMsgID(ctx, "stale", protocol.DirectionIncoming)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusExpired, stale.Status)
}
