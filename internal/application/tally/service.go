package tally

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// balanceLookups bounds concurrent balance queries during one recalculation.
const balanceLookups = 8

// Service recomputes proposal results and applies flagging outcomes.
type Service struct {
	store  store.Store
	chain  chain.Query
	policy *Policy
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a new tally service.
func NewService(st store.Store, q chain.Query, policy *Policy, logger zerolog.Logger) *Service {
	if policy == nil {
		policy = &Policy{}
	}
	return &Service{
		store:  st,
		chain:  q,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With().Str("service", "tally").Logger(),
	}
}

// RecalculateProposalResult stores a new result snapshot weighted by the
// voters' current balances. Earlier snapshots are left untouched.
func (s *Service) RecalculateProposalResult(ctx context.Context, proposalHash string) (*proposal.Result, error) {
	var result *proposal.Result
	err := s.store.InTx(ctx, store.ProposalLockKey(proposalHash), func(ctx context.Context, tx store.Repositories) error {
		var err error
		result, err = s.recalculate(ctx, tx, proposalHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) recalculate(ctx context.Context, tx store.Repositories, proposalHash string) (*proposal.Result, error) {
	p, err := tx.Proposals().GetByHash(ctx, proposalHash)
	if err != nil {
		return nil, apperr.Persistence("failed to load proposal", err)
	}
	if p == nil {
		return nil, apperr.NotFound("proposal %s", proposalHash)
	}
	votes, err := tx.Proposals().ListVotes(ctx, p.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to list votes", err)
	}

	balances := make([]btcutil.Amount, len(votes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(balanceLookups)
	for i, v := range votes {
		g.Go(func() error {
			bal, err := s.chain.GetAddressBalance(gctx, v.Voter)
			if err != nil {
				return fmt.Errorf("failed to get balance of %s: %w", v.Voter, err)
			}
			balances[i] = bal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := proposal.NewResult(p, s.now())
	for i, v := range votes {
		weight := int64(balances[i])
		if weight != v.Weight {
			if err := tx.Proposals().UpdateVoteWeight(ctx, v.ID, weight); err != nil {
				return nil, apperr.Persistence("failed to update vote weight", err)
			}
		}
		result.Add(v.OptionID, weight)
	}
	if err := tx.Proposals().CreateResult(ctx, result); err != nil {
		return nil, apperr.Persistence("failed to create proposal result", err)
	}
	s.logger.Debug().Str("proposal", p.Hash).Int("votes", len(votes)).Msg("proposal result recalculated")
	return result, nil
}

// ShouldRemoveFlaggedItem reports whether result carries enough stake to
// remove the flagged target.
func (s *Service) ShouldRemoveFlaggedItem(ctx context.Context, result *proposal.Result, flagged *proposal.FlaggedItem) (bool, error) {
	return s.shouldRemove(ctx, s.store, result, flagged)
}

func (s *Service) shouldRemove(ctx context.Context, repos store.Repositories, result *proposal.Result, flagged *proposal.FlaggedItem) (bool, error) {
	if result == nil || flagged == nil {
		return false, nil
	}
	if flagged.Category == protocol.CategoryItemVote {
		refs, err := repos.Listings().CountReferences(ctx, flagged.Target)
		if err != nil {
			return false, apperr.Persistence("failed to count listing references", err)
		}
		if refs.Any() {
			return false, nil
		}
	}

	info, err := s.chain.GetBlockchainInfo(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get blockchain info: %w", err)
	}
	supply, err := btcutil.NewAmount(info.MoneySupply)
	if err != nil {
		return false, fmt.Errorf("invalid money supply %v: %w", info.MoneySupply, err)
	}

	remove := result.ByDescription(protocol.OptionRemove)
	keep := result.ByDescription(protocol.OptionKeep)
	if remove == nil || keep == nil {
		return false, nil
	}
	threshold := s.policy.Threshold(flagged.Category, supply)
	return s.policy.Remove(remove.Weight, keep.Weight, threshold, supply)
}

// FinalizeExpired designates a final result for every proposal whose voting
// window closed and removes flagged targets the vote decided against.
func (s *Service) FinalizeExpired(ctx context.Context) (int, error) {
	expired, err := s.store.Proposals().ListExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to list expired proposals: %w", err)
	}
	finalized := 0
	for _, p := range expired {
		if err := s.finalize(ctx, p.Hash); err != nil {
			s.logger.Error().Err(err).Str("proposal", p.Hash).Msg("failed to finalize proposal")
			continue
		}
		finalized++
	}
	return finalized, nil
}

func (s *Service) finalize(ctx context.Context, proposalHash string) error {
	return s.store.InTx(ctx, store.ProposalLockKey(proposalHash), func(ctx context.Context, tx store.Repositories) error {
		result, err := s.recalculate(ctx, tx, proposalHash)
		if err != nil {
			return err
		}
		if err := tx.Proposals().SetFinalResult(ctx, proposalHash, result.ID); err != nil {
			return apperr.Persistence("failed to set final result", err)
		}
		flagged, err := tx.Proposals().GetFlaggedItem(ctx, proposalHash)
		if err != nil {
			return apperr.Persistence("failed to load flagged item", err)
		}
		if flagged == nil || flagged.Removed {
			return nil
		}
		remove, err := s.shouldRemove(ctx, tx, result, flagged)
		if err != nil || !remove {
			return err
		}
		if err := tx.Proposals().MarkFlaggedRemoved(ctx, flagged.ID); err != nil {
			return apperr.Persistence("failed to mark flagged item removed", err)
		}
		switch flagged.Category {
		case protocol.CategoryItemVote:
			err = tx.Listings().MarkRemoved(ctx, flagged.Target)
		case protocol.CategoryMarketVote:
			err = tx.Markets().MarkRemoved(ctx, flagged.Target)
		}
		if err != nil {
			return apperr.Persistence("failed to remove flagged target", err)
		}
		s.logger.Info().Str("proposal", proposalHash).Str("target", flagged.Target).Msg("flagged target removed")
		return nil
	})
}
