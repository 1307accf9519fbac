package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p2pmarket/marketd/internal/domain/bid"
	"github.com/p2pmarket/marketd/internal/domain/comment"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/listing"
	"github.com/p2pmarket/marketd/internal/domain/market"
	"github.com/p2pmarket/marketd/internal/domain/order"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/infrastructure/keylock"
)

// Store implements store.Store on PostgreSQL.
type Store struct {
	repositories
	pool  *pgxpool.Pool
	locks *keylock.Map
}

var _ store.Store = (*Store)(nil)

// NewStore creates a store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		repositories: repositories{q: pool},
		pool:         pool,
		locks:        keylock.New(),
	}
}

// InTx serialises on lockKey inside this process and across processes
// through a transaction-scoped advisory lock.
func (s *Store) InTx(ctx context.Context, lockKey string, fn store.TxFunc) error {
	unlock := s.locks.Lock(lockKey)
	defer unlock()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if lockKey != "" {
			if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
				return fmt.Errorf("failed to acquire advisory lock %s: %w", lockKey, err)
			}
		}
		return fn(ctx, repositories{q: tx})
	})
}

type repositories struct {
	q querier
}

func (r repositories) Bids() bid.Repository           { return NewBidRepository(r.q) }
func (r repositories) Orders() order.Repository       { return NewOrderRepository(r.q) }
func (r repositories) Listings() listing.Repository   { return NewListingRepository(r.q) }
func (r repositories) Markets() market.Repository     { return NewMarketRepository(r.q) }
func (r repositories) Comments() comment.Repository   { return NewCommentRepository(r.q) }
func (r repositories) Proposals() proposal.Repository { return NewProposalRepository(r.q) }
func (r repositories) Envelopes() envelope.Repository { return NewEnvelopeRepository(r.q) }
