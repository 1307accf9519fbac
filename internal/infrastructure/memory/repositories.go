package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/comment"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/listing"
	"github.com/p2pmarket/marketd/internal/domain/market"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/protocol"
)

type bidRepo struct{ v view }

func (r bidRepo) Create(_ context.Context, b *bid.Bid) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.bids[b.Hash]; ok {
			return fmt.Errorf("bid %s: %w", b.Hash, ErrDuplicate)
		}
		d.bids[b.Hash] = *b
		d.bidSeq[b.Hash] = d.next()
		return nil
	})
}

func (r bidRepo) GetByHash(_ context.Context, hash string) (*bid.Bid, error) {
	var out *bid.Bid
	err := r.v.with(func(d *data) error {
		if b, ok := d.bids[hash]; ok {
			out = &b
		}
		return nil
	})
	return out, err
}

func (r bidRepo) GetByMsgID(_ context.Context, msgID string) (*bid.Bid, error) {
	var out *bid.Bid
	err := r.v.with(func(d *data) error {
		if msgID == "" {
			return nil
		}
		for _, b := range d.bids {
			if b.MsgID == msgID {
				b := b
				out = &b
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r bidRepo) ListByChain(_ context.Context, chainHash string) ([]*bid.Bid, error) {
	var out []*bid.Bid
	err := r.v.with(func(d *data) error {
		for _, b := range d.bids {
			if b.ChainHash == chainHash {
				b := b
				out = append(out, &b)
			}
		}
		sort.Slice(out, func(i, j int) bool { return d.bidSeq[out[i].Hash] < d.bidSeq[out[j].Hash] })
		return nil
	})
	return out, err
}

func (r bidRepo) CountByListing(_ context.Context, listingHash string) (int, error) {
	n := 0
	err := r.v.with(func(d *data) error {
		for _, b := range d.bids {
			if b.ListingHash == listingHash && b.Type == protocol.TypeBid {
				n++
			}
		}
		return nil
	})
	return n, err
}

type orderRepo struct{ v view }

func (r orderRepo) Create(_ context.Context, o *order.Order, it *order.Item) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.items[it.BidHash]; ok {
			return fmt.Errorf("order item %s: %w", it.BidHash, ErrDuplicate)
		}
		d.orders[o.ID] = *o
		d.items[it.BidHash] = *it
		return nil
	})
}

func (r orderRepo) GetByID(_ context.Context, orderID uuid.UUID) (*order.Order, error) {
	var out *order.Order
	err := r.v.with(func(d *data) error {
		if o, ok := d.orders[orderID]; ok {
			out = &o
		}
		return nil
	})
	return out, err
}

func (r orderRepo) GetItemByBidHash(_ context.Context, bidHash string) (*order.Item, error) {
	var out *order.Item
	err := r.v.with(func(d *data) error {
		if it, ok := d.items[bidHash]; ok {
			out = &it
		}
		return nil
	})
	return out, err
}

func (r orderRepo) UpdateStatus(_ context.Context, o *order.Order, it *order.Item) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.items[it.BidHash]; !ok {
			return fmt.Errorf("order item %s not found", it.BidHash)
		}
		d.orders[o.ID] = *o
		d.items[it.BidHash] = *it
		return nil
	})
}

type listingRepo struct{ v view }

func (r listingRepo) Create(_ context.Context, item *listing.Item) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.listings[item.Hash]; ok {
			return fmt.Errorf("listing %s: %w", item.Hash, ErrDuplicate)
		}
		d.listings[item.Hash] = *item
		return nil
	})
}

func (r listingRepo) GetByHash(_ context.Context, hash string) (*listing.Item, error) {
	var out *listing.Item
	err := r.v.with(func(d *data) error {
		if it, ok := d.listings[hash]; ok {
			out = &it
		}
		return nil
	})
	return out, err
}

func (r listingRepo) MarkRemoved(_ context.Context, hash string) error {
	return r.v.with(func(d *data) error {
		it, ok := d.listings[hash]
		if !ok {
			return nil
		}
		it.Removed = true
		d.listings[hash] = it
		return nil
	})
}

func (r listingRepo) CreateImage(_ context.Context, img *listing.Image) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.images[img.Hash]; ok {
			return fmt.Errorf("image %s: %w", img.Hash, ErrDuplicate)
		}
		d.images[img.Hash] = *img
		return nil
	})
}

func (r listingRepo) GetImageByHash(_ context.Context, hash string) (*listing.Image, error) {
	var out *listing.Image
	err := r.v.with(func(d *data) error {
		if img, ok := d.images[hash]; ok {
			out = &img
		}
		return nil
	})
	return out, err
}

func (r listingRepo) AddFavorite(_ context.Context, listingHash, _ string) error {
	return r.v.with(func(d *data) error {
		d.favorites[listingHash]++
		return nil
	})
}

func (r listingRepo) AddCartItem(_ context.Context, listingHash, _ string) error {
	return r.v.with(func(d *data) error {
		d.carts[listingHash]++
		return nil
	})
}

func (r listingRepo) CountReferences(ctx context.Context, listingHash string) (listing.References, error) {
	var refs listing.References
	err := r.v.with(func(d *data) error {
		for _, b := range d.bids {
			if b.ListingHash == listingHash && b.Type == protocol.TypeBid {
				refs.Bids++
			}
		}
		refs.Favorites = d.favorites[listingHash]
		refs.CartItems = d.carts[listingHash]
		return nil
	})
	return refs, err
}

type marketRepo struct{ v view }

func (r marketRepo) Create(_ context.Context, m *market.Market) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.markets[m.Hash]; ok {
			return fmt.Errorf("market %s: %w", m.Hash, ErrDuplicate)
		}
		d.markets[m.Hash] = *m
		return nil
	})
}

func (r marketRepo) GetByHash(_ context.Context, hash string) (*market.Market, error) {
	var out *market.Market
	err := r.v.with(func(d *data) error {
		if m, ok := d.markets[hash]; ok {
			out = &m
		}
		return nil
	})
	return out, err
}

func (r marketRepo) MarkRemoved(_ context.Context, hash string) error {
	return r.v.with(func(d *data) error {
		m, ok := d.markets[hash]
		if !ok {
			return nil
		}
		m.Removed = true
		d.markets[hash] = m
		return nil
	})
}

type commentRepo struct{ v view }

func (r commentRepo) Create(_ context.Context, c *comment.Comment) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.comments[c.Hash]; ok {
			return fmt.Errorf("comment %s: %w", c.Hash, ErrDuplicate)
		}
		d.comments[c.Hash] = *c
		return nil
	})
}

func (r commentRepo) GetByHash(_ context.Context, hash string) (*comment.Comment, error) {
	var out *comment.Comment
	err := r.v.with(func(d *data) error {
		if c, ok := d.comments[hash]; ok {
			out = &c
		}
		return nil
	})
	return out, err
}

type proposalRepo struct{ v view }

func voteKey(proposalHash, voter string) string { return proposalHash + "|" + voter }

func (r proposalRepo) Create(_ context.Context, p *proposal.Proposal) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.proposals[p.Hash]; ok {
			return fmt.Errorf("proposal %s: %w", p.Hash, ErrDuplicate)
		}
		cp := *p
		cp.Options = append([]proposal.Option(nil), p.Options...)
		d.proposals[p.Hash] = cp
		return nil
	})
}

func (r proposalRepo) GetByHash(_ context.Context, hash string) (*proposal.Proposal, error) {
	var out *proposal.Proposal
	err := r.v.with(func(d *data) error {
		if p, ok := d.proposals[hash]; ok {
			p.Options = append([]proposal.Option(nil), p.Options...)
			out = &p
		}
		return nil
	})
	return out, err
}

func (r proposalRepo) ListExpired(_ context.Context, now time.Time) ([]*proposal.Proposal, error) {
	var out []*proposal.Proposal
	err := r.v.with(func(d *data) error {
		for _, p := range d.proposals {
			if p.FinalResultID == nil && p.TimeEnd.Before(now) {
				p := p
				out = append(out, &p)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].TimeEnd.Before(out[j].TimeEnd) })
		return nil
	})
	return out, err
}

func (r proposalRepo) SetFinalResult(_ context.Context, proposalHash string, resultID uuid.UUID) error {
	return r.v.with(func(d *data) error {
		p, ok := d.proposals[proposalHash]
		if !ok {
			return fmt.Errorf("proposal %s not found", proposalHash)
		}
		id := resultID
		p.FinalResultID = &id
		d.proposals[proposalHash] = p
		return nil
	})
}

func (r proposalRepo) UpsertVote(_ context.Context, v *proposal.Vote) error {
	return r.v.with(func(d *data) error {
		key := voteKey(v.ProposalHash, v.Voter)
		if existing, ok := d.votes[key]; ok {
			v.ID = existing.ID
		}
		d.votes[key] = *v
		return nil
	})
}

func (r proposalRepo) GetVote(_ context.Context, proposalHash, voter string) (*proposal.Vote, error) {
	var out *proposal.Vote
	err := r.v.with(func(d *data) error {
		if v, ok := d.votes[voteKey(proposalHash, voter)]; ok {
			out = &v
		}
		return nil
	})
	return out, err
}

func (r proposalRepo) GetVoteByHash(_ context.Context, hash string) (*proposal.Vote, error) {
	var out *proposal.Vote
	err := r.v.with(func(d *data) error {
		for _, v := range d.votes {
			if v.Hash == hash {
				v := v
				out = &v
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r proposalRepo) ListVotes(_ context.Context, proposalHash string) ([]*proposal.Vote, error) {
	var out []*proposal.Vote
	err := r.v.with(func(d *data) error {
		for _, v := range d.votes {
			if v.ProposalHash == proposalHash {
				v := v
				out = append(out, &v)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Voter < out[j].Voter })
		return nil
	})
	return out, err
}

func (r proposalRepo) UpdateVoteWeight(_ context.Context, voteID uuid.UUID, weight int64) error {
	return r.v.with(func(d *data) error {
		for k, v := range d.votes {
			if v.ID == voteID {
				v.Weight = weight
				v.UpdatedAt = time.Now().UTC()
				d.votes[k] = v
				return nil
			}
		}
		return fmt.Errorf("vote %s not found", voteID)
	})
}

func (r proposalRepo) CreateResult(_ context.Context, res *proposal.Result) error {
	return r.v.with(func(d *data) error {
		cp := *res
		cp.Options = append([]proposal.OptionResult(nil), res.Options...)
		d.results[res.ID] = cp
		d.resultSeq[res.ID] = d.next()
		return nil
	})
}

func (r proposalRepo) GetResult(_ context.Context, resultID uuid.UUID) (*proposal.Result, error) {
	var out *proposal.Result
	err := r.v.with(func(d *data) error {
		if res, ok := d.results[resultID]; ok {
			res.Options = append([]proposal.OptionResult(nil), res.Options...)
			out = &res
		}
		return nil
	})
	return out, err
}

func (r proposalRepo) LatestResult(_ context.Context, proposalHash string) (*proposal.Result, error) {
	var out *proposal.Result
	err := r.v.with(func(d *data) error {
		var best int64
		for id, res := range d.results {
			if res.ProposalHash != proposalHash {
				continue
			}
			if seq := d.resultSeq[id]; seq > best {
				best = seq
				res.Options = append([]proposal.OptionResult(nil), res.Options...)
				res := res
				out = &res
			}
		}
		return nil
	})
	return out, err
}

func (r proposalRepo) CreateFlaggedItem(_ context.Context, f *proposal.FlaggedItem) error {
	return r.v.with(func(d *data) error {
		if _, ok := d.flagged[f.ProposalHash]; ok {
			return fmt.Errorf("flagged item %s: %w", f.ProposalHash, ErrDuplicate)
		}
		d.flagged[f.ProposalHash] = *f
		return nil
	})
}

func (r proposalRepo) GetFlaggedItem(_ context.Context, proposalHash string) (*proposal.FlaggedItem, error) {
	var out *proposal.FlaggedItem
	err := r.v.with(func(d *data) error {
		if f, ok := d.flagged[proposalHash]; ok {
			out = &f
		}
		return nil
	})
	return out, err
}

func (r proposalRepo) MarkFlaggedRemoved(_ context.Context, id uuid.UUID) error {
	return r.v.with(func(d *data) error {
		for k, f := range d.flagged {
			if f.ID == id {
				f.Removed = true
				d.flagged[k] = f
				return nil
			}
		}
		return fmt.Errorf("flagged item %s not found", id)
	})
}

type envelopeRepo struct{ v view }

func envelopeKey(msgID string, dir protocol.Direction) string { return string(dir) + "|" + msgID }

func (r envelopeRepo) Create(_ context.Context, e *envelope.Envelope) error {
	return r.v.with(func(d *data) error {
		key := envelopeKey(e.MsgID, e.Direction)
		if _, ok := d.envelopes[key]; ok {
			return fmt.Errorf("envelope %s: %w", e.MsgID, ErrDuplicate)
		}
		d.envelopes[key] = *e
		return nil
	})
}

func (r envelopeRepo) GetByMsgID(_ context.Context, msgID string, dir protocol.Direction) (*envelope.Envelope, error) {
	var out *envelope.Envelope
	err := r.v.with(func(d *data) error {
		if e, ok := d.envelopes[envelopeKey(msgID, dir)]; ok {
			out = &e
		}
		return nil
	})
	return out, err
}

func (r envelopeRepo) Update(_ context.Context, e *envelope.Envelope) error {
	return r.v.with(func(d *data) error {
		key := envelopeKey(e.MsgID, e.Direction)
		if _, ok := d.envelopes[key]; !ok {
			return fmt.Errorf("envelope %s not found", e.MsgID)
		}
		d.envelopes[key] = *e
		return nil
	})
}

func (r envelopeRepo) ListProcessable(_ context.Context, now time.Time, maxRetries, limit int) ([]*envelope.Envelope, error) {
	var out []*envelope.Envelope
	err := r.v.with(func(d *data) error {
		for _, e := range d.envelopes {
			if e.Direction != protocol.DirectionIncoming || !e.ExpiresAt.After(now) {
				continue
			}
			switch {
			case e.Status == envelope.StatusReceived, e.Status == envelope.StatusWaiting:
			case e.Status == envelope.StatusProcessingFailed && e.Retryable && e.Retries < maxRetries:
			default:
				continue
			}
			e := e
			out = append(out, &e)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r envelopeRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.v.with(func(d *data) error {
		for k, e := range d.envelopes {
			if e.Final() || e.ExpiresAt.IsZero() || e.ExpiresAt.After(now) {
				continue
			}
			e.Status = envelope.StatusExpired
			d.envelopes[k] = e
			n++
		}
		return nil
	})
	return n, err
}
