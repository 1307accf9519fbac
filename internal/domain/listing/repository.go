package listing

import "context"

// Repository defines the interface for listing persistence.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByHash(ctx context.Context, hash string) (*Item, error)
	MarkRemoved(ctx context.Context, hash string) error

	CreateImage(ctx context.Context, img *Image) error
	GetImageByHash(ctx context.Context, hash string) (*Image, error)

	AddFavorite(ctx context.Context, listingHash, profile string) error
	AddCartItem(ctx context.Context, listingHash, profile string) error
	// CountReferences counts bids, favorites and cart items for a listing.
	CountReferences(ctx context.Context, listingHash string) (References, error)
}
