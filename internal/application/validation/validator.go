package validation

import (
	"context"
	"strings"
	"time"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// SignatureVerifier checks wallet message signatures.
type SignatureVerifier interface {
	VerifyMessage(address, signature, message string) error
}

// Validator performs structural and sequence checks on action messages.
type Validator struct {
	verifier SignatureVerifier
}

// New creates a validator. A nil verifier skips vote signature checks.
func New(verifier SignatureVerifier) *Validator {
	return &Validator{verifier: verifier}
}

func expectedType(a protocol.Action) protocol.ActionType {
	switch a.(type) {
	case *protocol.ListingAddAction:
		return protocol.TypeListingAdd
	case *protocol.BidAction:
		return protocol.TypeBid
	case *protocol.BidAcceptAction:
		return protocol.TypeBidAccept
	case *protocol.BidRejectAction:
		return protocol.TypeBidReject
	case *protocol.BidCancelAction:
		return protocol.TypeBidCancel
	case *protocol.EscrowLockAction:
		return protocol.TypeEscrowLock
	case *protocol.EscrowCompleteAction:
		return protocol.TypeEscrowComplete
	case *protocol.EscrowReleaseAction:
		return protocol.TypeEscrowRelease
	case *protocol.EscrowRefundAction:
		return protocol.TypeEscrowRefund
	case *protocol.OrderItemShipAction:
		return protocol.TypeOrderItemShip
	case *protocol.ProposalAddAction:
		return protocol.TypeProposalAdd
	case *protocol.VoteAction:
		return protocol.TypeVote
	case *protocol.MarketAddAction:
		return protocol.TypeMarketAdd
	case *protocol.ListingImageAddAction:
		return protocol.TypeListingImageAdd
	case *protocol.CommentAddAction:
		return protocol.TypeCommentAdd
	}
	return ""
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// ValidateMessage checks a decoded message without looking at local state.
func (v *Validator) ValidateMessage(msg *protocol.Message) error {
	if err := msg.ValidateBasic(); err != nil {
		return apperr.Structural("%v", err)
	}
	if want := expectedType(msg.Action); want == "" || want != msg.Type() {
		return apperr.Structural("action type %s does not match payload", msg.Type())
	}
	if err := protocol.VerifyHash(msg.Action); err != nil {
		return apperr.Structural("%v", err)
	}

	switch a := msg.Action.(type) {
	case *protocol.ListingAddAction:
		if blank(a.Item.Seller) || blank(a.Item.Market) || blank(a.Item.Title) {
			return apperr.Structural("listing seller, market and title are required")
		}
		if a.Item.Price <= 0 {
			return apperr.Structural("listing price must be positive")
		}
	case *protocol.BidAction:
		if blank(a.Item) || blank(a.Buyer.Address) {
			return apperr.Structural("bid item and buyer address are required")
		}
		if a.Amount < 0 {
			return apperr.Structural("bid amount must not be negative")
		}
	case *protocol.EscrowLockAction:
		if blank(a.Bid) {
			return apperr.Structural("%s: bid is required", a.Type)
		}
		switch a.Escrow {
		case protocol.EscrowMultisig, protocol.EscrowMAD, protocol.EscrowMADCT:
		default:
			return apperr.Structural("unknown escrow type %q", a.Escrow)
		}
	case protocol.ChainStep:
		if blank(a.BidHash()) {
			return apperr.Structural("%s: bid is required", msg.Type())
		}
	case *protocol.ProposalAddAction:
		return v.validateProposal(a)
	case *protocol.VoteAction:
		return v.validateVote(a)
	case *protocol.MarketAddAction:
		if blank(a.Name) || blank(a.MarketType) || blank(a.ReceiveKey) {
			return apperr.Structural("market name, type and receive key are required")
		}
	case *protocol.ListingImageAddAction:
		if blank(a.Target) || blank(a.Data) {
			return apperr.Structural("image target and data are required")
		}
	case *protocol.CommentAddAction:
		if blank(a.Sender) || blank(a.Target) || blank(a.Message) || blank(a.CommentType) {
			return apperr.Structural("comment sender, target, message and type are required")
		}
	}
	return nil
}

func (v *Validator) validateProposal(a *protocol.ProposalAddAction) error {
	if blank(a.Submitter) || blank(a.Title) {
		return apperr.Structural("proposal submitter and title are required")
	}
	switch a.Category {
	case protocol.CategoryPublicVote:
	case protocol.CategoryItemVote, protocol.CategoryMarketVote:
		if blank(a.Target) {
			return apperr.Structural("%s proposal requires a target", a.Category)
		}
	default:
		return apperr.Structural("unknown proposal category %q", a.Category)
	}
	if a.TimeEnd <= a.TimeStart {
		return apperr.Structural("proposal must end after it starts")
	}
	if len(a.Options) < 2 {
		return apperr.Structural("proposal needs at least two options")
	}
	seen := map[int]bool{}
	for _, o := range a.Options {
		if seen[o.OptionID] || blank(o.Description) {
			return apperr.Structural("proposal options must have unique ids and descriptions")
		}
		seen[o.OptionID] = true
	}
	return nil
}

func (v *Validator) validateVote(a *protocol.VoteAction) error {
	if blank(a.ProposalHash) || blank(a.Voter) || blank(a.Signature) {
		return apperr.Structural("vote proposal, voter and signature are required")
	}
	if v.verifier != nil {
		if err := v.verifier.VerifyMessage(a.Voter, a.Signature, a.SignedPayload()); err != nil {
			return apperr.Structural("vote signature: %v", err)
		}
	}
	return nil
}

// ValidateSequence checks msg against local state. It returns nil when the
// message can be applied now or was already applied, a deferred error when a
// prerequisite may still arrive, and a rejection otherwise.
func (v *Validator) ValidateSequence(ctx context.Context, repos store.Repositories, msg *protocol.Message, dir protocol.Direction, from string) error {
	switch a := msg.Action.(type) {
	case *protocol.ListingAddAction, *protocol.MarketAddAction:
		return nil
	case *protocol.BidAction:
		return v.sequenceBid(ctx, repos, a, dir)
	case protocol.ChainStep:
		return v.sequenceStep(ctx, repos, a, dir, from)
	case *protocol.ProposalAddAction:
		return v.sequenceProposal(ctx, repos, a)
	case *protocol.VoteAction:
		return v.sequenceVote(ctx, repos, a)
	case *protocol.ListingImageAddAction:
		item, err := repos.Listings().GetByHash(ctx, a.Target)
		if err != nil {
			return apperr.Persistence("failed to load listing", err)
		}
		if item == nil {
			return apperr.Deferred("listing %s not received yet", a.Target)
		}
		return nil
	case *protocol.CommentAddAction:
		if a.Parent == "" {
			return nil
		}
		parent, err := repos.Comments().GetByHash(ctx, a.Parent)
		if err != nil {
			return apperr.Persistence("failed to load parent comment", err)
		}
		if parent == nil {
			return apperr.Deferred("parent comment %s not received yet", a.Parent)
		}
		return nil
	}
	return apperr.Structural("no sequence rules for %s", msg.Type())
}

func (v *Validator) sequenceBid(ctx context.Context, repos store.Repositories, a *protocol.BidAction, dir protocol.Direction) error {
	existing, err := repos.Bids().GetByHash(ctx, a.Hash)
	if err != nil {
		return apperr.Persistence("failed to load bid", err)
	}
	if existing != nil {
		return nil
	}
	item, err := repos.Listings().GetByHash(ctx, a.Item)
	if err != nil {
		return apperr.Persistence("failed to load listing", err)
	}
	if item == nil {
		if dir == protocol.DirectionOutgoing {
			return apperr.NotFound("listing %s", a.Item)
		}
		return apperr.Deferred("listing %s not received yet", a.Item)
	}
	if item.Removed {
		return apperr.Rejected("listing %s was removed", a.Item)
	}
	if item.Expired(time.UnixMilli(a.Generated)) {
		return apperr.Rejected("listing %s expired", a.Item)
	}
	return nil
}

// buyerSteps are sent by the buyer; every other chain step comes from the seller.
var buyerSteps = map[protocol.ActionType]bool{
	protocol.TypeBidCancel:     true,
	protocol.TypeEscrowLock:    true,
	protocol.TypeEscrowRelease: true,
}

func (v *Validator) sequenceStep(ctx context.Context, repos store.Repositories, a protocol.ChainStep, dir protocol.Direction, from string) error {
	hdr := a.Header()
	existing, err := repos.Bids().GetByHash(ctx, hdr.Hash)
	if err != nil {
		return apperr.Persistence("failed to load bid", err)
	}
	if existing != nil {
		return nil
	}

	root, err := repos.Bids().GetByHash(ctx, a.BidHash())
	if err != nil {
		return apperr.Persistence("failed to load bid", err)
	}
	if root == nil {
		return apperr.NotFound("bid %s", a.BidHash())
	}
	if !root.IsRoot() || root.Type != protocol.TypeBid {
		return apperr.Rejected("%s must reference an %s, got %s", hdr.Type, protocol.TypeBid, root.Type)
	}
	item, err := repos.Orders().GetItemByBidHash(ctx, root.Hash)
	if err != nil {
		return apperr.Persistence("failed to load order item", err)
	}
	if item == nil {
		return apperr.NotFound("order item for bid %s", root.Hash)
	}

	if from != "" {
		o, err := repos.Orders().GetByID(ctx, item.OrderID)
		if err != nil {
			return apperr.Persistence("failed to load order", err)
		}
		if o == nil {
			return apperr.NotFound("order %s", item.OrderID)
		}
		party, want := o.Seller, "seller"
		if buyerSteps[hdr.Type] {
			party, want = o.Buyer, "buyer"
		}
		if party != "" && party != from {
			return apperr.Rejected("%s must be sent by the %s", hdr.Type, want)
		}
	}

	if hdr.Type == protocol.TypeEscrowRefund {
		chainBids, err := repos.Bids().ListByChain(ctx, root.Hash)
		if err != nil {
			return apperr.Persistence("failed to load bid chain", err)
		}
		if bid.FindType(chainBids, protocol.TypeBidAccept) == nil || bid.FindType(chainBids, protocol.TypeEscrowLock) == nil {
			return apperr.Rejected("refund for bid %s requires accept and lock steps", root.Hash)
		}
	}

	if accept, ok := a.(*protocol.BidAcceptAction); ok && accept.Listing != nil {
		listingItem, err := repos.Listings().GetByHash(ctx, root.ListingHash)
		if err != nil {
			return apperr.Persistence("failed to load listing", err)
		}
		if listingItem != nil && listingItem.Seller != accept.Listing.Seller {
			return apperr.Rejected("accepted listing seller does not match %s", listingItem.Seller)
		}
	}

	target, ok := order.TargetFor(hdr.Type)
	if !ok {
		return apperr.Structural("%s is not a bid chain step", hdr.Type)
	}
	if hdr.Type == protocol.TypeOrderItemShip && item.Status == order.ItemComplete {
		return nil
	}
	switch {
	case order.IsLegalTransition(item.Status, target):
		return nil
	case order.CanEventuallyTransition(item.Status, target):
		if dir == protocol.DirectionOutgoing {
			return apperr.Rejected("order item is %s, %s not possible yet", item.Status, hdr.Type)
		}
		return apperr.Deferred("order item is %s, waiting before %s", item.Status, target)
	}
	return apperr.Rejected("order item is %s, %s can never apply", item.Status, hdr.Type)
}

func (v *Validator) sequenceProposal(ctx context.Context, repos store.Repositories, a *protocol.ProposalAddAction) error {
	existing, err := repos.Proposals().GetByHash(ctx, a.Hash)
	if err != nil {
		return apperr.Persistence("failed to load proposal", err)
	}
	if existing != nil {
		return nil
	}
	switch a.Category {
	case protocol.CategoryItemVote:
		item, err := repos.Listings().GetByHash(ctx, a.Target)
		if err != nil {
			return apperr.Persistence("failed to load listing", err)
		}
		if item == nil {
			return apperr.Deferred("flagged listing %s not received yet", a.Target)
		}
	case protocol.CategoryMarketVote:
		m, err := repos.Markets().GetByHash(ctx, a.Target)
		if err != nil {
			return apperr.Persistence("failed to load market", err)
		}
		if m == nil {
			return apperr.Deferred("flagged market %s not received yet", a.Target)
		}
	}
	return nil
}

func (v *Validator) sequenceVote(ctx context.Context, repos store.Repositories, a *protocol.VoteAction) error {
	existing, err := repos.Proposals().GetVoteByHash(ctx, a.Hash)
	if err != nil {
		return apperr.Persistence("failed to load vote", err)
	}
	if existing != nil {
		return nil
	}
	p, err := repos.Proposals().GetByHash(ctx, a.ProposalHash)
	if err != nil {
		return apperr.Persistence("failed to load proposal", err)
	}
	if p == nil {
		return apperr.Deferred("proposal %s not received yet", a.ProposalHash)
	}
	if p.Expired(time.UnixMilli(a.Generated)) {
		return apperr.Rejected("proposal %s closed before the vote", a.ProposalHash)
	}
	if !p.HasOption(a.OptionID) {
		return apperr.Rejected("proposal %s has no option %d", a.ProposalHash, a.OptionID)
	}
	return nil
}
