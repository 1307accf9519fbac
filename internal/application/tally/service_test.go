package tally

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/domain/chain/mocks"
	"github.com/p2pmarket/marketd/internal/domain/listing"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/infrastructure/memory"
	"github.com/p2pmarket/marketd/internal/protocol"
)

type seeded struct {
	store *memory.Store
	query *mocks.MockQuery
	svc   *Service
	prop  *proposal.Proposal
}

// seed stores an item-vote proposal on a listing with the given votes.
func seed(t *testing.T, end time.Time, votes map[string]int) *seeded {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	q := mocks.NewMockQuery(gomock.NewController(t))
	policy, err := NewPolicy(1, 1, "")
	require.NoError(t, err)

	require.NoError(t, st.Listings().Create(ctx, &listing.Item{ID: uuid.New(), Hash: "listing-1", Seller: "pseller", Market: "pmarket", Title: "spam", Price: 1}))
	p := &proposal.Proposal{
		ID:        uuid.New(),
		Hash:      "proposal-1",
		Submitter: "pflagger",
		Title:     "spam",
		Category:  protocol.CategoryItemVote,
		Target:    "listing-1",
		TimeStart: end.Add(-time.Hour),
		TimeEnd:   end,
		Options: []proposal.Option{
			{OptionID: 0, Description: protocol.OptionKeep},
			{OptionID: 1, Description: protocol.OptionRemove},
		},
	}
	require.NoError(t, st.Proposals().Create(ctx, p))
	require.NoError(t, st.Proposals().CreateFlaggedItem(ctx, &proposal.FlaggedItem{
		ID: uuid.New(), ProposalHash: p.Hash, Target: p.Target, Category: p.Category,
	}))
	for voter, option := range votes {
		require.NoError(t, st.Proposals().UpsertVote(ctx, &proposal.Vote{
			ID: uuid.New(), Hash: "vote-" + voter, ProposalHash: p.Hash, Voter: voter, OptionID: option,
		}))
	}
	return &seeded{store: st, query: q, svc: NewService(st, q, policy, zerolog.Nop()), prop: p}
}

func (s *seeded) balances(b map[string]btcutil.Amount) {
	s.query.EXPECT().GetAddressBalance(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, addr string) (btcutil.Amount, error) {
			return b[addr], nil
		}).AnyTimes()
}

func TestRecalculateProposalResult_Deterministic(t *testing.T) {
	s := seed(t, time.Now().Add(time.Hour), map[string]int{"pa": 1, "pb": 1, "pc": 0})
	s.balances(map[string]btcutil.Amount{"pa": 500, "pb": 250, "pc": 100})
	ctx := context.Background()

	first, err := s.svc.RecalculateProposalResult(ctx, s.prop.Hash)
	require.NoError(t, err)
	second, err := s.svc.RecalculateProposalResult(ctx, s.prop.Hash)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Options, second.Options)
	remove := first.ByDescription(protocol.OptionRemove)
	require.NotNil(t, remove)
	assert.EqualValues(t, 750, remove.Weight)
	assert.Equal(t, 2, remove.Voters)
	keep := first.ByDescription(protocol.OptionKeep)
	require.NotNil(t, keep)
	assert.EqualValues(t, 100, keep.Weight)

	v, err := s.store.Proposals().GetVote(ctx, s.prop.Hash, "pa")
	require.NoError(t, err)
	assert.EqualValues(t, 500, v.Weight)
	assert.Equal(t, 1, v.OptionID)

	latest, err := s.store.Proposals().LatestResult(ctx, s.prop.Hash)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestRecalculateProposalResult_UnknownProposal(t *testing.T) {
	s := seed(t, time.Now(), nil)
	_, err := s.svc.RecalculateProposalResult(context.Background(), "missing")
	assert.ErrorContains(t, err, "missing")
}

func TestShouldRemoveFlaggedItem(t *testing.T) {
	ctx := context.Background()
	result := func(remove, keep int64) *proposal.Result {
		return &proposal.Result{Options: []proposal.OptionResult{
			{OptionID: 0, Description: protocol.OptionKeep, Weight: keep},
			{OptionID: 1, Description: protocol.OptionRemove, Weight: remove},
		}}
	}
	flaggedFor := func(s *seeded) *proposal.FlaggedItem {
		f, err := s.store.Proposals().GetFlaggedItem(ctx, s.prop.Hash)
		require.NoError(t, err)
		return f
	}

	t.Run("below threshold", func(t *testing.T) {
		s := seed(t, time.Now(), nil)
		s.query.EXPECT().GetBlockchainInfo(gomock.Any()).Return(&chain.BlockchainInfo{MoneySupply: 1e8}, nil)
		got, err := s.svc.ShouldRemoveFlaggedItem(ctx, result(6e11, 1e11), flaggedFor(s))
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("above threshold", func(t *testing.T) {
		s := seed(t, time.Now(), nil)
		s.query.EXPECT().GetBlockchainInfo(gomock.Any()).Return(&chain.BlockchainInfo{MoneySupply: 1e8}, nil)
		got, err := s.svc.ShouldRemoveFlaggedItem(ctx, result(1.0002e14, 1e10), flaggedFor(s))
		require.NoError(t, err)
		assert.True(t, got)
	})

	t.Run("referenced listing is kept", func(t *testing.T) {
		s := seed(t, time.Now(), nil)
		require.NoError(t, s.store.Listings().AddFavorite(ctx, "listing-1", "pfan"))
		got, err := s.svc.ShouldRemoveFlaggedItem(ctx, result(1e16, 0), flaggedFor(s))
		require.NoError(t, err)
		assert.False(t, got)
	})

	t.Run("missing option", func(t *testing.T) {
		s := seed(t, time.Now(), nil)
		s.query.EXPECT().GetBlockchainInfo(gomock.Any()).Return(&chain.BlockchainInfo{MoneySupply: 1e8}, nil)
		got, err := s.svc.ShouldRemoveFlaggedItem(ctx, &proposal.Result{}, flaggedFor(s))
		require.NoError(t, err)
		assert.False(t, got)
	})
}

func TestFinalizeExpired(t *testing.T) {
	ctx := context.Background()
	s := seed(t, time.Now().Add(-time.Minute), map[string]int{"pwhale": 1})
	s.balances(map[string]btcutil.Amount{"pwhale": 2e14})
	s.query.EXPECT().GetBlockchainInfo(gomock.Any()).Return(&chain.BlockchainInfo{MoneySupply: 1e8}, nil)

	n, err := s.svc.FinalizeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, err := s.store.Proposals().GetByHash(ctx, s.prop.Hash)
	require.NoError(t, err)
	require.NotNil(t, p.FinalResultID)
	item, err := s.store.Listings().GetByHash(ctx, "listing-1")
	require.NoError(t, err)
	assert.True(t, item.Removed)
	flagged, err := s.store.Proposals().GetFlaggedItem(ctx, s.prop.Hash)
	require.NoError(t, err)
	assert.True(t, flagged.Removed)

	n, err = s.svc.FinalizeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
