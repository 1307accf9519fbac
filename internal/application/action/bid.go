package action

import (
	"context"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// BidRequest opens a negotiation on a listing.
type BidRequest struct {
	Route
	ListingHash string
	Shipping    *protocol.ShippingAddress
	// Amount defaults to the listing price.
	Amount int64
}

type bidHandler struct {
	base
	noHooks[BidRequest]
}

func (h *bidHandler) Build(ctx context.Context, repos store.Repositories, req BidRequest) (protocol.Action, error) {
	item, err := repos.Listings().GetByHash(ctx, req.ListingHash)
	if err != nil {
		return nil, apperr.Persistence("failed to load listing", err)
	}
	if item == nil {
		return nil, apperr.NotFound("listing %s", req.ListingHash)
	}
	if item.Removed {
		return nil, apperr.Rejected("listing %s was removed", req.ListingHash)
	}
	amount := req.Amount
	if amount == 0 {
		amount = item.Price
	}
	return &protocol.BidAction{
		Item:   item.Hash,
		Buyer:  protocol.BuyerInfo{Address: req.From, ShippingAddress: req.Shipping},
		Amount: amount,
	}, nil
}

// LockKey serialises on the chain the bid opens.
func (h *bidHandler) LockKey(msg *protocol.Message) string {
	return store.OrderLockKey(msg.Hash())
}

func (h *bidHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, meta Meta) (*Applied, error) {
	a, ok := msg.Action.(*protocol.BidAction)
	if !ok {
		return nil, apperr.Structural("expected %s", protocol.TypeBid)
	}
	if existing, err := h.existing(ctx, repos, a.Hash, meta.MsgID); err != nil || existing != nil {
		return existing, err
	}

	item, err := repos.Listings().GetByHash(ctx, a.Item)
	if err != nil {
		return nil, apperr.Persistence("failed to load listing", err)
	}
	if item == nil {
		return nil, apperr.NotFound("listing %s", a.Item)
	}

	payload, err := payloadOf(a)
	if err != nil {
		return nil, err
	}
	b := bid.NewRoot(a.Hash, meta.MsgID, a.Buyer.Address, a.Item, meta.Direction, payload, generatedAt(a))
	if err := repos.Bids().Create(ctx, b); err != nil {
		return nil, apperr.Persistence("failed to create bid", err)
	}
	o, it := order.New(b.Hash, item.Hash, b.Bidder, item.Seller)
	if err := repos.Orders().Create(ctx, o, it); err != nil {
		return nil, apperr.Persistence("failed to create order", err)
	}
	return &Applied{ObjectID: b.ID, ObjectHash: b.Hash, Target: item.Hash, Created: true}, nil
}

// existing finds a bid already recorded under the hash or transport message id.
func (h *bidHandler) existing(ctx context.Context, repos store.Repositories, hash, msgID string) (*Applied, error) {
	b, err := repos.Bids().GetByHash(ctx, hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load bid", err)
	}
	if b == nil && msgID != "" {
		if b, err = repos.Bids().GetByMsgID(ctx, msgID); err != nil {
			return nil, apperr.Persistence("failed to load bid", err)
		}
	}
	if b == nil {
		return nil, nil
	}
	return &Applied{ObjectID: b.ID, ObjectHash: b.Hash, Target: b.ListingHash}, nil
}
