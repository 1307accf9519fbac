package action

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

const defaultVotingPeriod = 7 * 24 * time.Hour

// ProposalRequest opens a governance vote.
type ProposalRequest struct {
	Route
	Title       string
	Description string
	Category    protocol.ProposalCategory
	Target      string
	// Options defaults to KEEP/REMOVE for flagging proposals.
	Options []string
	Period  time.Duration
}

type proposalHandler struct {
	base
	noHooks[ProposalRequest]
}

func (h *proposalHandler) Build(_ context.Context, _ store.Repositories, req ProposalRequest) (protocol.Action, error) {
	options := req.Options
	if len(options) == 0 && req.Category != protocol.CategoryPublicVote {
		options = []string{protocol.OptionKeep, protocol.OptionRemove}
	}
	period := req.Period
	if period <= 0 {
		period = defaultVotingPeriod
	}
	start := h.now()
	a := &protocol.ProposalAddAction{
		Submitter:   req.From,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Target:      req.Target,
		TimeStart:   start.UnixMilli(),
		TimeEnd:     start.Add(period).UnixMilli(),
	}
	for i, o := range options {
		a.Options = append(a.Options, protocol.ProposalOptionPayload{OptionID: i, Description: o})
	}
	return a, nil
}

func (h *proposalHandler) LockKey(msg *protocol.Message) string {
	return store.ProposalLockKey(msg.Hash())
}

func (h *proposalHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, _ Meta) (*Applied, error) {
	a, ok := msg.Action.(*protocol.ProposalAddAction)
	if !ok {
		return nil, apperr.Structural("expected %s", protocol.TypeProposalAdd)
	}
	existing, err := repos.Proposals().GetByHash(ctx, a.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load proposal", err)
	}
	if existing != nil {
		return &Applied{ObjectID: existing.ID, ObjectHash: existing.Hash, Target: existing.Target}, nil
	}

	now := h.now()
	p := &proposal.Proposal{
		ID:          uuid.New(),
		Hash:        a.Hash,
		Submitter:   a.Submitter,
		Title:       a.Title,
		Description: a.Description,
		Category:    a.Category,
		Target:      a.Target,
		TimeStart:   time.UnixMilli(a.TimeStart).UTC(),
		TimeEnd:     time.UnixMilli(a.TimeEnd).UTC(),
		CreatedAt:   now,
	}
	for _, o := range a.Options {
		p.Options = append(p.Options, proposal.Option{OptionID: o.OptionID, Description: o.Description})
	}
	if err := repos.Proposals().Create(ctx, p); err != nil {
		return nil, apperr.Persistence("failed to create proposal", err)
	}
	if err := repos.Proposals().CreateResult(ctx, proposal.NewResult(p, now)); err != nil {
		return nil, apperr.Persistence("failed to create proposal result", err)
	}
	if p.Category != protocol.CategoryPublicVote {
		flagged := &proposal.FlaggedItem{
			ID:           uuid.New(),
			ProposalHash: p.Hash,
			Target:       p.Target,
			Category:     p.Category,
			Reason:       p.Description,
			CreatedAt:    now,
		}
		if err := repos.Proposals().CreateFlaggedItem(ctx, flagged); err != nil {
			return nil, apperr.Persistence("failed to create flagged item", err)
		}
	}
	return &Applied{ObjectID: p.ID, ObjectHash: p.Hash, Target: p.Target, Created: true}, nil
}

// VoteRequest casts the sender's vote.
type VoteRequest struct {
	Route
	ProposalHash string
	OptionID     int
}

type voteHandler struct {
	base
	noHooks[VoteRequest]
	signer chain.Signer
	tally  Tallier
}

func (h *voteHandler) Build(ctx context.Context, repos store.Repositories, req VoteRequest) (protocol.Action, error) {
	p, err := repos.Proposals().GetByHash(ctx, req.ProposalHash)
	if err != nil {
		return nil, apperr.Persistence("failed to load proposal", err)
	}
	if p == nil {
		return nil, apperr.NotFound("proposal %s", req.ProposalHash)
	}
	if p.Expired(h.now()) {
		return nil, apperr.Rejected("proposal %s has closed", p.Hash)
	}
	if !p.HasOption(req.OptionID) {
		return nil, apperr.Rejected("proposal %s has no option %d", p.Hash, req.OptionID)
	}
	if h.signer == nil {
		return nil, fmt.Errorf("no signer configured")
	}
	v := &protocol.VoteAction{ProposalHash: p.Hash, OptionID: req.OptionID, Voter: req.From}
	v.Generated = h.now().UnixMilli()
	sig, err := h.signer.SignMessage(v.Voter, v.SignedPayload())
	if err != nil {
		return nil, fmt.Errorf("failed to sign vote: %w", err)
	}
	v.Signature = sig
	return v, nil
}

func (h *voteHandler) LockKey(msg *protocol.Message) string {
	if v, ok := msg.Action.(*protocol.VoteAction); ok {
		return store.ProposalLockKey(v.ProposalHash)
	}
	return store.ObjectLockKey(msg.Hash())
}

// Apply keeps one vote per voter. An older vote arriving after a newer one
// is ignored.
func (h *voteHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, meta Meta) (*Applied, error) {
	a, ok := msg.Action.(*protocol.VoteAction)
	if !ok {
		return nil, apperr.Structural("expected %s", protocol.TypeVote)
	}
	if v, err := repos.Proposals().GetVoteByHash(ctx, a.Hash); err != nil {
		return nil, apperr.Persistence("failed to load vote", err)
	} else if v != nil {
		return &Applied{ObjectID: v.ID, ObjectHash: v.Hash, Target: v.ProposalHash}, nil
	}
	p, err := repos.Proposals().GetByHash(ctx, a.ProposalHash)
	if err != nil {
		return nil, apperr.Persistence("failed to load proposal", err)
	}
	if p == nil {
		return nil, apperr.NotFound("proposal %s", a.ProposalHash)
	}

	current, err := repos.Proposals().GetVote(ctx, p.Hash, a.Voter)
	if err != nil {
		return nil, apperr.Persistence("failed to load vote", err)
	}
	votedAt := generatedAt(a)
	if current != nil && !votedAt.After(current.VotedAt) {
		return &Applied{ObjectID: current.ID, ObjectHash: current.Hash, Target: p.Hash}, nil
	}

	v := &proposal.Vote{
		ID:           uuid.New(),
		Hash:         a.Hash,
		MsgID:        meta.MsgID,
		ProposalHash: p.Hash,
		Voter:        a.Voter,
		OptionID:     a.OptionID,
		Signature:    a.Signature,
		VotedAt:      votedAt,
		UpdatedAt:    h.now(),
	}
	if current != nil {
		v.ID = current.ID
		v.Weight = current.Weight
	}
	if err := repos.Proposals().UpsertVote(ctx, v); err != nil {
		return nil, apperr.Persistence("failed to store vote", err)
	}
	return &Applied{ObjectID: v.ID, ObjectHash: v.Hash, Target: p.Hash, Created: true}, nil
}

// AfterCommit refreshes the tally so the new vote is counted.
func (h *voteHandler) AfterCommit(ctx context.Context, msg *protocol.Message, _ *Applied) error {
	if h.tally == nil {
		return nil
	}
	v, ok := msg.Action.(*protocol.VoteAction)
	if !ok {
		return nil
	}
	_, err := h.tally.RecalculateProposalResult(ctx, v.ProposalHash)
	return err
}
