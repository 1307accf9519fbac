package inbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/application/action"
	"github.com/p2pmarket/marketd/internal/application/dispatcher"
	"github.com/p2pmarket/marketd/internal/application/validation"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/infrastructure/memory"
	"github.com/p2pmarket/marketd/internal/protocol"
)

func newProcessor(t *testing.T) (*Processor, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc := action.NewService(action.Deps{Store: st, Validator: validation.New(nil)}, zerolog.Nop())
	reg, err := dispatcher.NewRegistry(svc.Handlers()...)
	require.NoError(t, err)
	d := dispatcher.New(st, reg, nil, nil, zerolog.Nop())
	return NewProcessor(st, d, Config{Workers: 2}, zerolog.Nop()), st
}

func sealed(t *testing.T, act protocol.Action, typ protocol.ActionType, generated time.Time) json.RawMessage {
	t.Helper()
	act.Header().Type = typ
	act.Header().Generated = generated.UnixMilli()
	require.NoError(t, protocol.Seal(act))
	raw, err := json.Marshal(protocol.NewMessage(act))
	require.NoError(t, err)
	return raw
}

func TestReceive(t *testing.T) {
	p, st := newProcessor(t)
	ctx := context.Background()
	listingAct := &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: "pseller", Market: "pmarket", Title: "lamp", Price: 10}}
	in := Incoming{MsgID: "m-1", From: "pseller", To: "pmarket", DaysRetention: 2, Message: sealed(t, listingAct, protocol.TypeListingAdd, time.Now())}

	first, err := p.Receive(ctx, in)
	require.NoError(t, err)
	second, err := p.Receive(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, envelope.StatusReceived, first.Status)
	assert.WithinDuration(t, first.ReceivedAt.Add(48*time.Hour), first.ExpiresAt, time.Second)
	stored, err := st.Envelopes().GetByMsgID(ctx, "m-1", protocol.DirectionIncoming)
	require.NoError(t, err)
	require.NotNil(t, stored)

	t.Run("validation", func(t *testing.T) {
		_, err := p.Receive(ctx, Incoming{Message: in.Message})
		assert.ErrorContains(t, err, "msgid is required")
		_, err = p.Receive(ctx, Incoming{MsgID: "m-2"})
		assert.ErrorContains(t, err, "message is required")
	})
}

func TestProcessPending_RetriesWaiting(t *testing.T) {
	p, st := newProcessor(t)
	ctx := context.Background()
	now := time.Now()
	listingAct := &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: "pseller", Market: "pmarket", Title: "lamp", Price: 10}}
	listingRaw := sealed(t, listingAct, protocol.TypeListingAdd, now)
	bidRaw := sealed(t, &protocol.BidAction{Item: listingAct.Hash, Buyer: protocol.BuyerInfo{Address: "pbuyer"}}, protocol.TypeBid, now.Add(time.Second))

	bidEnv, err := p.Deliver(ctx, Incoming{MsgID: "m-bid", From: "pbuyer", To: "pseller", Message: bidRaw})
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusWaiting, bidEnv.Status)

	listingEnv, err := p.Deliver(ctx, Incoming{MsgID: "m-listing", From: "pseller", To: "pmarket", Message: listingRaw})
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusProcessed, listingEnv.Status)

	n, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := st.Envelopes().GetByMsgID(ctx, "m-bid", protocol.DirectionIncoming)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusProcessed, stored.Status)

	n, err = p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireStale(t *testing.T) {
	p, st := newProcessor(t)
	ctx := context.Background()
	past := time.Now().Add(-72 * time.Hour)
	p.now = func() time.Time { return past }
	_, err := p.Receive(ctx, Incoming{MsgID: "old", From: "a", To: "b", DaysRetention: 1, Message: json.RawMessage(`{}`)})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Now().UTC() }

	n, err := p.ExpireStale(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := st.Envelopes().GetByMsgID(ctx, "old", protocol.DirectionIncoming)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusExpired, stored.Status)

	pending, err := p.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestRun_StopsOnCancel(t *testing.T) {
	p, _ := newProcessor(t)
	p.cfg.PollInterval = 5 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		p.Run(ctx, func(context.Context) {
			select {
			case ticks <- struct{}{}:
			default:
			}
		})
		close(done)
	}()

	select {
	case <-ticks:
	case <-time.After(time.Second):
		t.Fatal("inbox loop did not tick")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("inbox loop did not stop")
	}
}
