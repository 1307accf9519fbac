package validation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/listing"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/infrastructure/memory"
	"github.com/p2pmarket/marketd/internal/protocol"
)

type mockVerifier struct {
	mock.Mock
}

func (m *mockVerifier) VerifyMessage(address, signature, message string) error {
	return m.Called(address, signature, message).Error(0)
}

func sealed(t *testing.T, act protocol.Action, typ protocol.ActionType) *protocol.Message {
	t.Helper()
	hdr := act.Header()
	hdr.Type = typ
	if hdr.Generated == 0 {
		hdr.Generated = time.Now().UnixMilli()
	}
	require.NoError(t, protocol.Seal(act))
	return protocol.NewMessage(act)
}

func TestValidateMessage(t *testing.T) {
	v := New(nil)

	t.Run("valid listing", func(t *testing.T) {
		msg := sealed(t, &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: "s", Market: "m", Title: "lamp", Price: 1}}, protocol.TypeListingAdd)
		assert.NoError(t, v.ValidateMessage(msg))
	})

	t.Run("type mismatch", func(t *testing.T) {
		msg := sealed(t, &protocol.BidCancelAction{BidRef: protocol.BidRef{Bid: "b"}}, protocol.TypeBidReject)
		assert.ErrorIs(t, v.ValidateMessage(msg), apperr.ErrStructural)
	})

	t.Run("tampered hash", func(t *testing.T) {
		act := &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: "s", Market: "m", Title: "lamp", Price: 1}}
		msg := sealed(t, act, protocol.TypeListingAdd)
		act.Item.Price = 2
		assert.ErrorIs(t, v.ValidateMessage(msg), apperr.ErrStructural)
	})

	t.Run("missing fields", func(t *testing.T) {
		cases := []*protocol.Message{
			sealed(t, &protocol.ListingAddAction{Item: protocol.ListingPayload{Seller: "s", Market: "m", Title: "lamp"}}, protocol.TypeListingAdd),
			sealed(t, &protocol.BidAction{Item: "l"}, protocol.TypeBid),
			sealed(t, &protocol.EscrowLockAction{BidRef: protocol.BidRef{Bid: "b"}, Escrow: "BOGUS"}, protocol.TypeEscrowLock),
			sealed(t, &protocol.EscrowReleaseAction{}, protocol.TypeEscrowRelease),
			sealed(t, &protocol.MarketAddAction{Name: "m"}, protocol.TypeMarketAdd),
			sealed(t, &protocol.ListingImageAddAction{Target: "l"}, protocol.TypeListingImageAdd),
			sealed(t, &protocol.CommentAddAction{Sender: "s", Target: "l"}, protocol.TypeCommentAdd),
		}
		for _, msg := range cases {
			assert.ErrorIs(t, v.ValidateMessage(msg), apperr.ErrStructural, msg.Type())
		}
	})

	t.Run("proposal", func(t *testing.T) {
		p := func(cat protocol.ProposalCategory, target string, opts ...string) *protocol.Message {
			act := &protocol.ProposalAddAction{Submitter: "s", Title: "t", Category: cat, Target: target, TimeStart: 1, TimeEnd: 2}
			for i, o := range opts {
				act.Options = append(act.Options, protocol.ProposalOptionPayload{OptionID: i, Description: o})
			}
			return sealed(t, act, protocol.TypeProposalAdd)
		}
		assert.NoError(t, v.ValidateMessage(p(protocol.CategoryPublicVote, "", "yes", "no")))
		assert.Error(t, v.ValidateMessage(p(protocol.CategoryItemVote, "", "KEEP", "REMOVE")))
		assert.Error(t, v.ValidateMessage(p(protocol.CategoryPublicVote, "", "only")))
		assert.Error(t, v.ValidateMessage(p("OTHER", "", "yes", "no")))
	})
}

func TestValidateMessage_VoteSignature(t *testing.T) {
	verifier := new(mockVerifier)
	v := New(verifier)
	good := &protocol.VoteAction{ProposalHash: "p", OptionID: 1, Voter: "pvoter", Signature: "sig"}
	good.Generated = 1700000000000
	bad := &protocol.VoteAction{ProposalHash: "p", OptionID: 1, Voter: "pvoter", Signature: "forged"}
	bad.Generated = 1700000000000
	verifier.On("VerifyMessage", "pvoter", "sig", "p:1:pvoter:1700000000000").Return(nil)
	verifier.On("VerifyMessage", "pvoter", "forged", "p:1:pvoter:1700000000000").Return(errors.New("signature mismatch"))

	assert.NoError(t, v.ValidateMessage(sealed(t, good, protocol.TypeVote)))
	err := v.ValidateMessage(sealed(t, bad, protocol.TypeVote))
	assert.ErrorIs(t, err, apperr.ErrStructural)
	assert.ErrorContains(t, err, "signature mismatch")
	verifier.AssertExpectations(t)
}

func TestValidateSequence(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	v := New(nil)

	bidMsg := sealed(t, &protocol.BidAction{Item: "listing-1", Buyer: protocol.BuyerInfo{Address: "b"}}, protocol.TypeBid)
	t.Run("bid before listing", func(t *testing.T) {
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, bidMsg, protocol.DirectionIncoming, "b"), apperr.ErrDeferred)
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, bidMsg, protocol.DirectionOutgoing, "b"), apperr.ErrNotFound)
	})

	require.NoError(t, st.Listings().Create(ctx, &listing.Item{
		ID: uuid.New(), Hash: "listing-1", Seller: "s", Market: "m", Title: "lamp", Price: 1,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	t.Run("expired listing", func(t *testing.T) {
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, bidMsg, protocol.DirectionIncoming, "b"), apperr.ErrSequenceRejected)
	})

	t.Run("image and comment", func(t *testing.T) {
		img := sealed(t, &protocol.ListingImageAddAction{Target: "listing-2", Data: "x"}, protocol.TypeListingImageAdd)
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, img, protocol.DirectionIncoming, ""), apperr.ErrDeferred)
		img = sealed(t, &protocol.ListingImageAddAction{Target: "listing-1", Data: "x"}, protocol.TypeListingImageAdd)
		assert.NoError(t, v.ValidateSequence(ctx, st, img, protocol.DirectionIncoming, ""))

		reply := sealed(t, &protocol.CommentAddAction{Sender: "s", Target: "listing-1", Parent: "c0", Message: "hi", CommentType: "LISTING_QUESTION_AND_ANSWERS"}, protocol.TypeCommentAdd)
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, reply, protocol.DirectionIncoming, ""), apperr.ErrDeferred)
	})

	t.Run("step without bid", func(t *testing.T) {
		step := sealed(t, &protocol.BidAcceptAction{BidRef: protocol.BidRef{Bid: "missing"}}, protocol.TypeBidAccept)
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, step, protocol.DirectionIncoming, "s"), apperr.ErrNotFound)
	})

	t.Run("vote", func(t *testing.T) {
		vote := &protocol.VoteAction{ProposalHash: "prop-1", OptionID: 5, Voter: "v", Signature: "sig"}
		vote.Generated = time.Now().UnixMilli()
		msg := sealed(t, vote, protocol.TypeVote)
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, msg, protocol.DirectionIncoming, "v"), apperr.ErrDeferred)

		require.NoError(t, st.Proposals().Create(ctx, &proposal.Proposal{
			ID: uuid.New(), Hash: "prop-1", Submitter: "s", Title: "t", Category: protocol.CategoryPublicVote,
			TimeStart: time.Now().Add(-time.Hour), TimeEnd: time.Now().Add(time.Hour),
			Options: []proposal.Option{{OptionID: 0, Description: "yes"}, {OptionID: 1, Description: "no"}},
		}))
		assert.ErrorIs(t, v.ValidateSequence(ctx, st, msg, protocol.DirectionIncoming, "v"), apperr.ErrSequenceRejected)
	})
}
