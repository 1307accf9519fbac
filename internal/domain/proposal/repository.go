package proposal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for proposal, vote and result persistence.
type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	GetByHash(ctx context.Context, hash string) (*Proposal, error)
	// ListExpired returns proposals closed before now without a final result.
	ListExpired(ctx context.Context, now time.Time) ([]*Proposal, error)
	SetFinalResult(ctx context.Context, proposalHash string, resultID uuid.UUID) error

	// UpsertVote stores v as the only vote of its voter on the proposal.
	UpsertVote(ctx context.Context, v *Vote) error
	GetVote(ctx context.Context, proposalHash, voter string) (*Vote, error)
	GetVoteByHash(ctx context.Context, hash string) (*Vote, error)
	ListVotes(ctx context.Context, proposalHash string) ([]*Vote, error)
	UpdateVoteWeight(ctx context.Context, voteID uuid.UUID, weight int64) error

	CreateResult(ctx context.Context, r *Result) error
	GetResult(ctx context.Context, resultID uuid.UUID) (*Result, error)
	LatestResult(ctx context.Context, proposalHash string) (*Result, error)

	CreateFlaggedItem(ctx context.Context, f *FlaggedItem) error
	GetFlaggedItem(ctx context.Context, proposalHash string) (*FlaggedItem, error)
	MarkFlaggedRemoved(ctx context.Context, id uuid.UUID) error
}
