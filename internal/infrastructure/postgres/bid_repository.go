package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/p2pmarket/marketd/internal/domain/bid"
)

// BidRepository implements bid.Repository.
type BidRepository struct {
	q querier
}

func NewBidRepository(q querier) *BidRepository {
	return &BidRepository{q: q}
}

const bidColumns = `id, action_type, hash, msgid, direction, bidder, listing_hash, chain_hash, parent_hash, payload, generated_at, created_at`

func (r *BidRepository) Create(ctx context.Context, b *bid.Bid) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO bids (`+bidColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, b.ID, b.Type, b.Hash, b.MsgID, b.Direction, b.Bidder, b.ListingHash, b.ChainHash, b.ParentHash, b.Payload, b.GeneratedAt, b.CreatedAt)
	return err
}

func (r *BidRepository) GetByHash(ctx context.Context, hash string) (*bid.Bid, error) {
	row := r.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE hash=$1`, hash)
	return scanBid(row)
}

func (r *BidRepository) GetByMsgID(ctx context.Context, msgID string) (*bid.Bid, error) {
	row := r.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE msgid=$1 AND msgid <> '' LIMIT 1`, msgID)
	return scanBid(row)
}

func (r *BidRepository) ListByChain(ctx context.Context, chainHash string) ([]*bid.Bid, error) {
	rows, err := r.q.Query(ctx, `SELECT `+bidColumns+` FROM bids WHERE chain_hash=$1 ORDER BY seq ASC`, chainHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bids []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

func (r *BidRepository) CountByListing(ctx context.Context, listingHash string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM bids WHERE listing_hash=$1 AND action_type='MPA_BID'`, listingHash).Scan(&n)
	return n, err
}

func scanBid(row pgx.Row) (*bid.Bid, error) {
	var b bid.Bid
	if err := row.Scan(&b.ID, &b.Type, &b.Hash, &b.MsgID, &b.Direction, &b.Bidder, &b.ListingHash, &b.ChainHash, &b.ParentHash, &b.Payload, &b.GeneratedAt, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
