package action

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p2pmarket/marketd/internal/application/validation"
	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// Deps are the collaborators of the action services.
type Deps struct {
	Store     store.Store
	Transport chain.Transport
	Chain     chain.Query
	Escrow    chain.EscrowBuilder
	Signer    chain.Signer
	Validator *validation.Validator
	Tally     Tallier
	Recorder  Recorder
}

// Service exposes one send operation per action type and the handlers the
// dispatcher routes incoming messages to.
type Service struct {
	pipeline *Pipeline
	store    store.Store
	logger   zerolog.Logger

	listing  *listingHandler
	image    *imageHandler
	market   *marketHandler
	comment  *commentHandler
	bid      *bidHandler
	steps    map[protocol.ActionType]*stepHandler
	proposal *proposalHandler
	vote     *voteHandler
}

// NewService creates the action services
func NewService(deps Deps, logger zerolog.Logger) *Service {
	now := func() time.Time { return time.Now().UTC() }
	mk := func(t protocol.ActionType) base {
		return base{typ: t, validator: deps.Validator, now: now}
	}
	s := &Service{
		pipeline: NewPipeline(deps.Store, deps.Transport, deps.Recorder, logger),
		store:    deps.Store,
		logger:   logger.With().Str("service", "action").Logger(),
		listing:  &listingHandler{base: mk(protocol.TypeListingAdd)},
		image:    &imageHandler{base: mk(protocol.TypeListingImageAdd)},
		market:   &marketHandler{base: mk(protocol.TypeMarketAdd)},
		comment:  &commentHandler{base: mk(protocol.TypeCommentAdd)},
		bid:      &bidHandler{base: mk(protocol.TypeBid)},
		steps:    map[protocol.ActionType]*stepHandler{},
		proposal: &proposalHandler{base: mk(protocol.TypeProposalAdd)},
		vote:     &voteHandler{base: mk(protocol.TypeVote), signer: deps.Signer, tally: deps.Tally},
	}
	for _, t := range protocol.AllActionTypes {
		if t.IsBidChainStep() {
			s.steps[t] = &stepHandler{base: mk(t), chain: deps.Chain, escrow: deps.Escrow}
		}
	}
	return s
}

// Handlers returns every incoming handler, one per action type.
func (s *Service) Handlers() []Handler {
	out := []Handler{s.listing, s.image, s.market, s.comment, s.bid, s.proposal, s.vote}
	for _, t := range protocol.AllActionTypes {
		if h, ok := s.steps[t]; ok {
			out = append(out, h)
		}
	}
	return out
}

// AddListing announces a listing.
func (s *Service) AddListing(ctx context.Context, req ListingRequest) (*chain.SendResult, error) {
	return send[ListingRequest](ctx, s.pipeline, s.listing, req)
}

// AddImage attaches an image to a listing.
func (s *Service) AddImage(ctx context.Context, req ImageRequest) (*chain.SendResult, error) {
	return send[ImageRequest](ctx, s.pipeline, s.image, req)
}

// AddMarket announces a market.
func (s *Service) AddMarket(ctx context.Context, req MarketRequest) (*chain.SendResult, error) {
	return send[MarketRequest](ctx, s.pipeline, s.market, req)
}

// AddComment posts a comment.
func (s *Service) AddComment(ctx context.Context, req CommentRequest) (*chain.SendResult, error) {
	return send[CommentRequest](ctx, s.pipeline, s.comment, req)
}

// Bid opens a bid chain on a listing.
func (s *Service) Bid(ctx context.Context, req BidRequest) (*chain.SendResult, error) {
	return send[BidRequest](ctx, s.pipeline, s.bid, req)
}

// AddProposal opens a proposal.
func (s *Service) AddProposal(ctx context.Context, req ProposalRequest) (*chain.SendResult, error) {
	return send[ProposalRequest](ctx, s.pipeline, s.proposal, req)
}

// Vote signs and casts a vote.
func (s *Service) Vote(ctx context.Context, req VoteRequest) (*chain.SendResult, error) {
	return send[VoteRequest](ctx, s.pipeline, s.vote, req)
}

// Accept sends MPA_ACCEPT for a bid.
func (s *Service) Accept(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeBidAccept, req)
}

// Reject sends MPA_REJECT for a bid.
func (s *Service) Reject(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeBidReject, req)
}

// Cancel sends MPA_CANCEL for a bid.
func (s *Service) Cancel(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeBidCancel, req)
}

// Lock sends MPA_LOCK and broadcasts the escrow transaction.
func (s *Service) Lock(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeEscrowLock, req)
}

// Complete sends MPA_COMPLETE and broadcasts the escrow transaction.
func (s *Service) Complete(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeEscrowComplete, req)
}

// Release sends MPA_RELEASE and broadcasts the escrow transaction.
func (s *Service) Release(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeEscrowRelease, req)
}

// Refund sends MPA_REFUND and broadcasts the escrow transaction.
func (s *Service) Refund(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeEscrowRefund, req)
}

// Ship sends MPA_SHIP.
func (s *Service) Ship(ctx context.Context, req StepRequest) (*chain.SendResult, error) {
	return s.step(ctx, protocol.TypeOrderItemShip, req)
}

// step fills in the counterparty when the caller left the recipient empty.
func (s *Service) step(ctx context.Context, typ protocol.ActionType, req StepRequest) (*chain.SendResult, error) {
	h := s.steps[typ]
	if req.To == "" {
		to, err := s.counterparty(ctx, req.BidHash, req.From)
		if err != nil {
			return nil, err
		}
		req.To = to
	}
	return send[StepRequest](ctx, s.pipeline, h, req)
}

func (s *Service) counterparty(ctx context.Context, bidHash, from string) (string, error) {
	it, err := s.store.Orders().GetItemByBidHash(ctx, bidHash)
	if err != nil {
		return "", apperr.Persistence("failed to load order item", err)
	}
	if it == nil {
		return "", apperr.NotFound("order item for bid %s", bidHash)
	}
	o, err := s.store.Orders().GetByID(ctx, it.OrderID)
	if err != nil {
		return "", apperr.Persistence("failed to load order", err)
	}
	if o == nil {
		return "", apperr.NotFound("order %s", it.OrderID)
	}
	if from == o.Buyer {
		return o.Seller, nil
	}
	return o.Buyer, nil
}
