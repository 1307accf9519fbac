package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/p2pmarket/marketd/internal/domain/comment"
	"github.com/p2pmarket/marketd/internal/domain/market"
)

// MarketRepository implements market.Repository.
type MarketRepository struct {
	q querier
}

func NewMarketRepository(q querier) *MarketRepository {
	return &MarketRepository{q: q}
}

func (r *MarketRepository) Create(ctx context.Context, m *market.Market) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO markets (id, hash, name, description, market_type, receive_key, publish_key, removed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, m.ID, m.Hash, m.Name, m.Description, m.Type, m.ReceiveKey, m.PublishKey, m.Removed, m.CreatedAt)
	return err
}

func (r *MarketRepository) GetByHash(ctx context.Context, hash string) (*market.Market, error) {
	var m market.Market
	err := r.q.QueryRow(ctx, `
		SELECT id, hash, name, description, market_type, receive_key, publish_key, removed, created_at
		FROM markets WHERE hash=$1
	`, hash).Scan(&m.ID, &m.Hash, &m.Name, &m.Description, &m.Type, &m.ReceiveKey, &m.PublishKey, &m.Removed, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *MarketRepository) MarkRemoved(ctx context.Context, hash string) error {
	_, err := r.q.Exec(ctx, `UPDATE markets SET removed=TRUE WHERE hash=$1`, hash)
	return err
}

// CommentRepository implements comment.Repository.
type CommentRepository struct {
	q querier
}

func NewCommentRepository(q querier) *CommentRepository {
	return &CommentRepository{q: q}
}

func (r *CommentRepository) Create(ctx context.Context, c *comment.Comment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO comments (id, hash, sender, receiver, target, parent_hash, message, comment_type, posted_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, c.ID, c.Hash, c.Sender, c.Receiver, c.Target, c.ParentHash, c.Message, c.Type, c.PostedAt, c.CreatedAt)
	return err
}

func (r *CommentRepository) GetByHash(ctx context.Context, hash string) (*comment.Comment, error) {
	var c comment.Comment
	err := r.q.QueryRow(ctx, `
		SELECT id, hash, sender, receiver, target, parent_hash, message, comment_type, posted_at, created_at
		FROM comments WHERE hash=$1
	`, hash).Scan(&c.ID, &c.Hash, &c.Sender, &c.Receiver, &c.Target, &c.ParentHash, &c.Message, &c.Type, &c.PostedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
