//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/p2pmarket/marketd/internal/application/action"
	"github.com/p2pmarket/marketd/internal/application/dispatcher"
	"github.com/p2pmarket/marketd/internal/application/inbox"
	"github.com/p2pmarket/marketd/internal/application/validation"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/infrastructure/postgres"
	"github.com/p2pmarket/marketd/internal/infrastructure/sse"
	"github.com/p2pmarket/marketd/internal/migrations"
	"github.com/p2pmarket/marketd/internal/protocol"
)

const (
	seller = "pseller"
	buyer  = "pbuyer"
	mkt    = "pmarket"
)

type node struct {
	store *postgres.Store
	inbox *inbox.Processor
	clock time.Time
	mu    sync.Mutex
}

func TestBidChainIntegration(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	listing := &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: seller, Market: mkt, Title: "lamp", Price: 1000}}
	n.mustDeliver(t, listing, protocol.TypeListingAdd, "m-listing", seller, mkt, envelope.StatusProcessed)

	bidAct := &protocol.BidAction{Item: listing.Hash, Buyer: protocol.BuyerInfo{Address: buyer}, Amount: 1000}
	n.mustDeliver(t, bidAct, protocol.TypeBid, "m-bid", buyer, seller, envelope.StatusProcessed)
	ref := protocol.BidRef{Bid: bidAct.Hash}

	n.mustDeliver(t, &protocol.BidAcceptAction{BidRef: ref}, protocol.TypeBidAccept, "m-accept", seller, buyer, envelope.StatusProcessed)
	n.mustDeliver(t, &protocol.EscrowLockAction{BidRef: ref, Escrow: protocol.EscrowMADCT}, protocol.TypeEscrowLock, "m-lock", buyer, seller, envelope.StatusProcessed)
	// Shipping before completion waits for the complete step.
	n.mustDeliver(t, &protocol.OrderItemShipAction{BidRef: ref}, protocol.TypeOrderItemShip, "m-ship", seller, buyer, envelope.StatusWaiting)
	n.mustDeliver(t, &protocol.EscrowCompleteAction{BidRef: ref}, protocol.TypeEscrowComplete, "m-complete", seller, buyer, envelope.StatusProcessed)

	processed, err := n.inbox.ProcessPending(ctx)
	if err != nil {
		t.Fatalf("process pending: %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected the waiting ship to be processed, got %d", processed)
	}
	n.mustDeliver(t, &protocol.EscrowReleaseAction{BidRef: ref}, protocol.TypeEscrowRelease, "m-release", buyer, seller, envelope.StatusProcessed)

	it, err := n.store.Orders().GetItemByBidHash(ctx, bidAct.Hash)
	if err != nil || it == nil {
		t.Fatalf("order item: %v", err)
	}
	if it.Status != order.ItemComplete {
		t.Fatalf("expected COMPLETE, got %s", it.Status)
	}
	steps, err := n.store.Bids().ListByChain(ctx, bidAct.Hash)
	if err != nil {
		t.Fatalf("list chain: %v", err)
	}
	if len(steps) != 6 {
		t.Fatalf("expected 6 chain steps, got %d", len(steps))
	}
}

func TestConcurrentDuplicateDelivery(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	listing := &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: seller, Market: mkt, Title: "chair", Price: 500}}
	n.mustDeliver(t, listing, protocol.TypeListingAdd, "m-listing", seller, mkt, envelope.StatusProcessed)

	bidAct := &protocol.BidAction{Item: listing.Hash, Buyer: protocol.BuyerInfo{Address: buyer}, Amount: 500}
	raw := n.seal(t, bidAct, protocol.TypeBid)

	var wg sync.WaitGroup
	statuses := make([]envelope.Status, 8)
	for i := range statuses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env, err := n.inbox.Deliver(ctx, inbox.Incoming{
				MsgID:   fmt.Sprintf("m-bid-%d", i),
				From:    buyer,
				To:      seller,
				Message: raw,
			})
			if err == nil {
				statuses[i] = env.Status
			}
		}()
	}
	wg.Wait()

	for i, s := range statuses {
		if s != envelope.StatusProcessed {
			t.Fatalf("delivery %d ended in %q", i, s)
		}
	}
	count, err := n.store.Bids().CountByListing(ctx, listing.Hash)
	if err != nil {
		t.Fatalf("count bids: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one bid, got %d", count)
	}
}

func TestConcurrentSiblingSteps(t *testing.T) {
	n := newNode(t)
	ctx := context.Background()

	listing := &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: seller, Market: mkt, Title: "desk", Price: 700}}
	n.mustDeliver(t, listing, protocol.TypeListingAdd, "m-listing", seller, mkt, envelope.StatusProcessed)
	bidAct := &protocol.BidAction{Item: listing.Hash, Buyer: protocol.BuyerInfo{Address: buyer}, Amount: 700}
	n.mustDeliver(t, bidAct, protocol.TypeBid, "m-bid", buyer, seller, envelope.StatusProcessed)
	ref := protocol.BidRef{Bid: bidAct.Hash}
	n.mustDeliver(t, &protocol.BidAcceptAction{BidRef: ref}, protocol.TypeBidAccept, "m-accept", seller, buyer, envelope.StatusProcessed)

	lockRaw := n.seal(t, &protocol.EscrowLockAction{BidRef: ref, Escrow: protocol.EscrowMADCT}, protocol.TypeEscrowLock)
	cancelRaw := n.seal(t, &protocol.BidCancelAction{BidRef: ref}, protocol.TypeBidCancel)

	var wg sync.WaitGroup
	var lockStatus, cancelStatus envelope.Status
	deliver := func(msgID string, raw json.RawMessage, out *envelope.Status) {
		defer wg.Done()
		env, err := n.inbox.Deliver(ctx, inbox.Incoming{MsgID: msgID, From: buyer, To: seller, Message: raw})
		if err == nil {
			*out = env.Status
		}
	}
	wg.Add(2)
	go deliver("m-lock", lockRaw, &lockStatus)
	go deliver("m-cancel", cancelRaw, &cancelStatus)
	wg.Wait()

	if cancelStatus != envelope.StatusProcessed {
		t.Fatalf("cancel ended in %q", cancelStatus)
	}
	it, err := n.store.Orders().GetItemByBidHash(ctx, bidAct.Hash)
	if err != nil || it == nil {
		t.Fatalf("order item: %v", err)
	}
	if it.Status != order.ItemBidCancelled {
		t.Fatalf("expected BID_CANCELLED, got %s", it.Status)
	}
	o, err := n.store.Orders().GetByID(ctx, it.OrderID)
	if err != nil || o == nil {
		t.Fatalf("order: %v", err)
	}
	if o.Status != order.StatusCancelled {
		t.Fatalf("expected CANCELLED order, got %s", o.Status)
	}

	steps, err := n.store.Bids().ListByChain(ctx, bidAct.Hash)
	if err != nil {
		t.Fatalf("list chain: %v", err)
	}
	// Lock then cancel replays both steps. Cancel then lock rejects the lock.
	switch lockStatus {
	case envelope.StatusProcessed:
		if len(steps) != 4 {
			t.Fatalf("expected 4 chain steps, got %d", len(steps))
		}
	case envelope.StatusProcessingFailed:
		if len(steps) != 3 {
			t.Fatalf("expected 3 chain steps, got %d", len(steps))
		}
		for _, s := range steps {
			if s.Type == protocol.TypeEscrowLock {
				t.Fatalf("rejected lock was stored in the chain")
			}
		}
	default:
		t.Fatalf("lock ended in %q", lockStatus)
	}
}

func newNode(t *testing.T) *node {
	t.Helper()
	dsn := testDatabaseURL(t)
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn, 16)
	if err != nil {
		t.Fatalf("db pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.RunMigrations(ctx, pool, migrations.FS); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := resetDatabase(ctx, pool); err != nil {
		t.Fatalf("reset db: %v", err)
	}

	logger := zerolog.Nop()
	st := postgres.NewStore(pool)
	svc := action.NewService(action.Deps{Store: st, Validator: validation.New(nil)}, logger)
	reg, err := dispatcher.NewRegistry(svc.Handlers()...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	hub := sse.NewHub()
	t.Cleanup(hub.Stop)
	d := dispatcher.New(st, reg, hub, nil, logger)
	return &node{
		store: st,
		inbox: inbox.NewProcessor(st, d, inbox.Config{Workers: 4}, logger),
		clock: time.Now().Add(-time.Hour),
	}
}

func (n *node) seal(t *testing.T, act protocol.Action, typ protocol.ActionType) json.RawMessage {
	t.Helper()
	n.mu.Lock()
	n.clock = n.clock.Add(time.Second)
	generated := n.clock.UnixMilli()
	n.mu.Unlock()

	hdr := act.Header()
	hdr.Type = typ
	hdr.Generated = generated
	if err := protocol.Seal(act); err != nil {
		t.Fatalf("seal: %v", err)
	}
	raw, err := json.Marshal(protocol.NewMessage(act))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func (n *node) mustDeliver(t *testing.T, act protocol.Action, typ protocol.ActionType, msgID, from, to string, want envelope.Status) {
	t.Helper()
	env, err := n.inbox.Deliver(context.Background(), inbox.Incoming{
		MsgID:   msgID,
		From:    from,
		To:      to,
		Message: n.seal(t, act, typ),
	})
	if err != nil {
		t.Fatalf("deliver %s: %v", msgID, err)
	}
	if env.Status != want {
		t.Fatalf("deliver %s: expected %s, got %s (%s)", msgID, want, env.Status, env.LastError)
	}
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		return dsn
	}
	t.Skip("TEST_DATABASE_URL not set; skipping integration tests")
	return ""
}

func resetDatabase(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE TABLE
			envelopes,
			flagged_items,
			proposal_results,
			votes,
			proposals,
			order_items,
			orders,
			bids,
			comments,
			markets,
			cart_items,
			listing_favorites,
			listing_images,
			listings
		RESTART IDENTITY CASCADE
	`)
	return err
}
