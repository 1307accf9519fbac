package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/p2pmarket/marketd/internal/domain/order"
)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	q querier
}

func NewOrderRepository(q querier) *OrderRepository {
	return &OrderRepository{q: q}
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order, it *order.Item) error {
	if _, err := r.q.Exec(ctx, `
		INSERT INTO orders (id, hash, buyer, seller, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, o.ID, o.Hash, o.Buyer, o.Seller, o.Status, o.CreatedAt, o.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	if _, err := r.q.Exec(ctx, `
		INSERT INTO order_items (id, order_id, bid_hash, listing_hash, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, it.ID, it.OrderID, it.BidHash, it.ListingHash, it.Status, it.CreatedAt, it.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order item: %w", err)
	}
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	var o order.Order
	err := r.q.QueryRow(ctx, `
		SELECT id, hash, buyer, seller, status, created_at, updated_at FROM orders WHERE id=$1
	`, orderID).Scan(&o.ID, &o.Hash, &o.Buyer, &o.Seller, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// GetItemByBidHash takes a row lock that lasts until the surrounding
// transaction ends. Outside a transaction the lock is released at once.
func (r *OrderRepository) GetItemByBidHash(ctx context.Context, bidHash string) (*order.Item, error) {
	var it order.Item
	err := r.q.QueryRow(ctx, `
		SELECT id, order_id, bid_hash, listing_hash, status, created_at, updated_at
		FROM order_items WHERE bid_hash=$1 FOR UPDATE
	`, bidHash).Scan(&it.ID, &it.OrderID, &it.BidHash, &it.ListingHash, &it.Status, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, o *order.Order, it *order.Item) error {
	if _, err := r.q.Exec(ctx, `UPDATE order_items SET status=$1, updated_at=$2 WHERE id=$3`, it.Status, it.UpdatedAt, it.ID); err != nil {
		return fmt.Errorf("failed to update order item: %w", err)
	}
	if _, err := r.q.Exec(ctx, `UPDATE orders SET status=$1, updated_at=$2 WHERE id=$3`, o.Status, o.UpdatedAt, o.ID); err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}
