package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/p2pmarket/marketd/internal/domain/listing"
)

// ListingRepository implements listing.Repository.
type ListingRepository struct {
	q querier
}

func NewListingRepository(q querier) *ListingRepository {
	return &ListingRepository{q: q}
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *ListingRepository) Create(ctx context.Context, item *listing.Item) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO listings (id, hash, seller, market, title, description, price, expires_at, removed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, item.ID, item.Hash, item.Seller, item.Market, item.Title, item.Description, item.Price, nullTime(item.ExpiresAt), item.Removed, item.CreatedAt)
	return err
}

func (r *ListingRepository) GetByHash(ctx context.Context, hash string) (*listing.Item, error) {
	var item listing.Item
	var expires *time.Time
	err := r.q.QueryRow(ctx, `
		SELECT id, hash, seller, market, title, description, price, expires_at, removed, created_at
		FROM listings WHERE hash=$1
	`, hash).Scan(&item.ID, &item.Hash, &item.Seller, &item.Market, &item.Title, &item.Description, &item.Price, &expires, &item.Removed, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if expires != nil {
		item.ExpiresAt = *expires
	}
	return &item, nil
}

func (r *ListingRepository) MarkRemoved(ctx context.Context, hash string) error {
	_, err := r.q.Exec(ctx, `UPDATE listings SET removed=TRUE WHERE hash=$1`, hash)
	return err
}

func (r *ListingRepository) CreateImage(ctx context.Context, img *listing.Image) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO listing_images (id, hash, listing_hash, data, featured, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, img.ID, img.Hash, img.ListingHash, img.Data, img.Featured, img.CreatedAt)
	return err
}

func (r *ListingRepository) GetImageByHash(ctx context.Context, hash string) (*listing.Image, error) {
	var img listing.Image
	err := r.q.QueryRow(ctx, `
		SELECT id, hash, listing_hash, data, featured, created_at FROM listing_images WHERE hash=$1
	`, hash).Scan(&img.ID, &img.Hash, &img.ListingHash, &img.Data, &img.Featured, &img.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &img, nil
}

func (r *ListingRepository) AddFavorite(ctx context.Context, listingHash, profile string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO listing_favorites (listing_hash, profile) VALUES ($1,$2) ON CONFLICT DO NOTHING
	`, listingHash, profile)
	return err
}

func (r *ListingRepository) AddCartItem(ctx context.Context, listingHash, profile string) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO cart_items (listing_hash, profile) VALUES ($1,$2) ON CONFLICT DO NOTHING
	`, listingHash, profile)
	return err
}

func (r *ListingRepository) CountReferences(ctx context.Context, listingHash string) (listing.References, error) {
	var refs listing.References
	err := r.q.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM bids WHERE listing_hash=$1 AND action_type='MPA_BID'),
			(SELECT COUNT(*) FROM listing_favorites WHERE listing_hash=$1),
			(SELECT COUNT(*) FROM cart_items WHERE listing_hash=$1)
	`, listingHash).Scan(&refs.Bids, &refs.Favorites, &refs.CartItems)
	return refs, err
}
