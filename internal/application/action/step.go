package action

import (
	"context"
	"fmt"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// StepRequest advances an existing bid chain.
type StepRequest struct {
	Route
	BidHash string
	Escrow  protocol.EscrowType
	// Memo lands in the side-channel key the step uses for free text.
	Memo string
}

// escrowTxKeys maps escrow steps to the side-channel key of their txid.
var escrowTxKeys = map[protocol.ActionType]protocol.ObjectKey{
	protocol.TypeEscrowLock:     protocol.KeyTxidLock,
	protocol.TypeEscrowComplete: protocol.KeyTxidComplete,
	protocol.TypeEscrowRelease:  protocol.KeyTxidRelease,
	protocol.TypeEscrowRefund:   protocol.KeyTxidRefund,
}

var memoKeys = map[protocol.ActionType]protocol.ObjectKey{
	protocol.TypeBidReject:     protocol.KeyRejectReason,
	protocol.TypeOrderItemShip: protocol.KeyShippingMemo,
	protocol.TypeEscrowRelease: protocol.KeyReleaseMemo,
	protocol.TypeEscrowRefund:  protocol.KeyRefundMemo,
}

// stepHandler serves every action that follows an MPA_BID.
type stepHandler struct {
	base
	chain  chain.Query
	escrow chain.EscrowBuilder
}

func newStepAction(typ protocol.ActionType, ref protocol.BidRef, req StepRequest) (protocol.Action, error) {
	switch typ {
	case protocol.TypeBidAccept:
		return &protocol.BidAcceptAction{BidRef: ref}, nil
	case protocol.TypeBidReject:
		return &protocol.BidRejectAction{BidRef: ref}, nil
	case protocol.TypeBidCancel:
		return &protocol.BidCancelAction{BidRef: ref}, nil
	case protocol.TypeEscrowLock:
		escrow := req.Escrow
		if escrow == "" {
			escrow = protocol.EscrowMADCT
		}
		return &protocol.EscrowLockAction{BidRef: ref, Escrow: escrow}, nil
	case protocol.TypeEscrowComplete:
		return &protocol.EscrowCompleteAction{BidRef: ref}, nil
	case protocol.TypeEscrowRelease:
		return &protocol.EscrowReleaseAction{BidRef: ref}, nil
	case protocol.TypeEscrowRefund:
		return &protocol.EscrowRefundAction{BidRef: ref}, nil
	case protocol.TypeOrderItemShip:
		return &protocol.OrderItemShipAction{BidRef: ref}, nil
	}
	return nil, apperr.Structural("%s is not a bid chain step", typ)
}

func (h *stepHandler) Build(ctx context.Context, repos store.Repositories, req StepRequest) (protocol.Action, error) {
	root, err := repos.Bids().GetByHash(ctx, req.BidHash)
	if err != nil {
		return nil, apperr.Persistence("failed to load bid", err)
	}
	if root == nil || root.Type != protocol.TypeBid {
		return nil, apperr.NotFound("bid %s", req.BidHash)
	}

	if h.typ == protocol.TypeEscrowRefund {
		chainBids, err := repos.Bids().ListByChain(ctx, root.Hash)
		if err != nil {
			return nil, apperr.Persistence("failed to load bid chain", err)
		}
		if bid.FindType(chainBids, protocol.TypeBidAccept) == nil {
			return nil, apperr.Rejected("no %s found for bid %s", protocol.TypeBidAccept, root.Hash)
		}
		if bid.FindType(chainBids, protocol.TypeEscrowLock) == nil {
			return nil, apperr.Rejected("no %s found for bid %s", protocol.TypeEscrowLock, root.Hash)
		}
	}

	act, err := newStepAction(h.typ, protocol.BidRef{Bid: root.Hash}, req)
	if err != nil {
		return nil, err
	}
	if accept, ok := act.(*protocol.BidAcceptAction); ok {
		item, err := repos.Listings().GetByHash(ctx, root.ListingHash)
		if err != nil {
			return nil, apperr.Persistence("failed to load listing", err)
		}
		if item == nil {
			return nil, apperr.NotFound("listing %s", root.ListingHash)
		}
		accept.Listing = &protocol.ListingPayload{
			Seller:      item.Seller,
			Market:      item.Market,
			Title:       item.Title,
			Description: item.Description,
			Price:       item.Price,
		}
		if !item.ExpiresAt.IsZero() {
			accept.Listing.Expires = item.ExpiresAt.UnixMilli()
		}
	}
	if key, ok := memoKeys[h.typ]; ok && req.Memo != "" {
		act.Header().Objects.Set(key, req.Memo)
	}
	return act, nil
}

// BeforeSend broadcasts the escrow transaction of escrow steps and records
// its txid in the side channel.
func (h *stepHandler) BeforeSend(ctx context.Context, repos store.Repositories, req StepRequest, msg *protocol.Message) error {
	key, ok := escrowTxKeys[h.typ]
	if !ok {
		return nil
	}
	if h.escrow == nil || h.chain == nil {
		return fmt.Errorf("escrow collaborators not configured")
	}
	chainBids, err := repos.Bids().ListByChain(ctx, req.BidHash)
	if err != nil {
		return fmt.Errorf("failed to load bid chain: %w", err)
	}
	rawTx, err := h.escrow.Build(ctx, h.typ, chainBids)
	if err != nil {
		return fmt.Errorf("failed to build escrow transaction: %w", err)
	}
	txid, err := h.chain.BroadcastTransaction(ctx, rawTx)
	if err != nil {
		return fmt.Errorf("failed to broadcast escrow transaction: %w", err)
	}
	msg.Action.Header().Objects.Set(key, txid)
	return nil
}

func (h *stepHandler) AfterSend(_ context.Context, _ StepRequest, _ *protocol.Message, res *chain.SendResult) (*chain.SendResult, error) {
	return res, nil
}

func (h *stepHandler) LockKey(msg *protocol.Message) string {
	if step, ok := msg.Action.(protocol.ChainStep); ok {
		return store.OrderLockKey(step.BidHash())
	}
	return store.ObjectLockKey(msg.Hash())
}

// Apply records the step and advances the order. A ship arriving after the
// item completed is kept as history without a transition.
func (h *stepHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, meta Meta) (*Applied, error) {
	step, ok := msg.Action.(protocol.ChainStep)
	if !ok || msg.Type() != h.typ {
		return nil, apperr.Structural("expected %s", h.typ)
	}
	hash := msg.Hash()
	if b, err := repos.Bids().GetByHash(ctx, hash); err != nil {
		return nil, apperr.Persistence("failed to load bid", err)
	} else if b != nil {
		return &Applied{ObjectID: b.ID, ObjectHash: b.Hash, Target: b.ListingHash}, nil
	}

	root, err := repos.Bids().GetByHash(ctx, step.BidHash())
	if err != nil {
		return nil, apperr.Persistence("failed to load bid", err)
	}
	if root == nil {
		return nil, apperr.NotFound("bid %s", step.BidHash())
	}
	it, err := repos.Orders().GetItemByBidHash(ctx, root.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load order item", err)
	}
	if it == nil {
		return nil, apperr.NotFound("order item for bid %s", root.Hash)
	}
	o, err := repos.Orders().GetByID(ctx, it.OrderID)
	if err != nil {
		return nil, apperr.Persistence("failed to load order", err)
	}
	if o == nil {
		return nil, apperr.NotFound("order %s", it.OrderID)
	}
	chainBids, err := repos.Bids().ListByChain(ctx, root.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load bid chain", err)
	}

	parent := bid.Last(chainBids)
	if parent == nil {
		parent = root
	}
	payload, err := payloadOf(msg.Action)
	if err != nil {
		return nil, err
	}
	b := bid.NewStep(h.typ, hash, meta.MsgID, meta.Direction, parent, payload, generatedAt(msg.Action))
	informational := h.typ == protocol.TypeOrderItemShip && it.Status == order.ItemComplete
	if !informational {
		target, _ := order.TargetFor(h.typ)
		if err := order.Advance(o, it, target); err != nil {
			return nil, err
		}
	}
	if err := repos.Bids().Create(ctx, b); err != nil {
		return nil, apperr.Persistence("failed to create bid", err)
	}
	if !informational {
		if err := repos.Orders().UpdateStatus(ctx, o, it); err != nil {
			return nil, apperr.Persistence("failed to update order status", err)
		}
	}
	return &Applied{ObjectID: b.ID, ObjectHash: b.Hash, Target: root.ListingHash, Created: true}, nil
}
