package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/comment"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/listing"
	"github.com/p2pmarket/marketd/internal/domain/market"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/domain/store"
)

var ErrDuplicate = errors.New("duplicate key")

type data struct {
	seq       int64
	bids      map[string]bid.Bid
	bidSeq    map[string]int64
	orders    map[uuid.UUID]order.Order
	items     map[string]order.Item
	listings  map[string]listing.Item
	images    map[string]listing.Image
	favorites map[string]int
	carts     map[string]int
	markets   map[string]market.Market
	comments  map[string]comment.Comment
	proposals map[string]proposal.Proposal
	votes     map[string]proposal.Vote
	results   map[uuid.UUID]proposal.Result
	resultSeq map[uuid.UUID]int64
	flagged   map[string]proposal.FlaggedItem
	envelopes map[string]envelope.Envelope
}

func newData() *data {
	return &data{
		bids:      map[string]bid.Bid{},
		bidSeq:    map[string]int64{},
		orders:    map[uuid.UUID]order.Order{},
		items:     map[string]order.Item{},
		listings:  map[string]listing.Item{},
		images:    map[string]listing.Image{},
		favorites: map[string]int{},
		carts:     map[string]int{},
		markets:   map[string]market.Market{},
		comments:  map[string]comment.Comment{},
		proposals: map[string]proposal.Proposal{},
		votes:     map[string]proposal.Vote{},
		results:   map[uuid.UUID]proposal.Result{},
		resultSeq: map[uuid.UUID]int64{},
		flagged:   map[string]proposal.FlaggedItem{},
		envelopes: map[string]envelope.Envelope{},
	}
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// clone is shallow per value. Slices inside stored values are never
// modified in place, so sharing them between snapshots is safe.
func (d *data) clone() *data {
	return &data{
		seq:       d.seq,
		bids:      copyMap(d.bids),
		bidSeq:    copyMap(d.bidSeq),
		orders:    copyMap(d.orders),
		items:     copyMap(d.items),
		listings:  copyMap(d.listings),
		images:    copyMap(d.images),
		favorites: copyMap(d.favorites),
		carts:     copyMap(d.carts),
		markets:   copyMap(d.markets),
		comments:  copyMap(d.comments),
		proposals: copyMap(d.proposals),
		votes:     copyMap(d.votes),
		results:   copyMap(d.results),
		resultSeq: copyMap(d.resultSeq),
		flagged:   copyMap(d.flagged),
		envelopes: copyMap(d.envelopes),
	}
}

func (d *data) next() int64 {
	d.seq++
	return d.seq
}

// Store keeps all state in process memory. Transactions are serialised
// globally and roll back by restoring a snapshot.
type Store struct {
	mu sync.Mutex
	d  *data
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{d: newData()}
}

// view runs fn against the live data, taking the store lock unless the
// caller already holds it inside InTx.
type view struct {
	s  *Store
	tx bool
}

func (v view) with(fn func(d *data) error) error {
	if !v.tx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.d)
}

// InTx runs fn under the store lock and rolls back when it fails.
func (s *Store) InTx(ctx context.Context, _ string, fn store.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.d.clone()
	if err := fn(ctx, repositories{view{s: s, tx: true}}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

type repositories struct {
	v view
}

func (r repositories) Bids() bid.Repository           { return bidRepo(r) }
func (r repositories) Orders() order.Repository       { return orderRepo(r) }
func (r repositories) Listings() listing.Repository   { return listingRepo(r) }
func (r repositories) Markets() market.Repository     { return marketRepo(r) }
func (r repositories) Comments() comment.Repository   { return commentRepo(r) }
func (r repositories) Proposals() proposal.Repository { return proposalRepo(r) }
func (r repositories) Envelopes() envelope.Repository { return envelopeRepo(r) }
func (s *Store) root() repositories                   { return repositories{view{s: s}} }
func (s *Store) Bids() bid.Repository                 { return s.root().Bids() }
func (s *Store) Orders() order.Repository             { return s.root().Orders() }
func (s *Store) Listings() listing.Repository         { return s.root().Listings() }
func (s *Store) Markets() market.Repository           { return s.root().Markets() }
func (s *Store) Comments() comment.Repository         { return s.root().Comments() }
func (s *Store) Proposals() proposal.Repository       { return s.root().Proposals() }
func (s *Store) Envelopes() envelope.Repository       { return s.root().Envelopes() }
