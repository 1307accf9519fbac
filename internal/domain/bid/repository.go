package bid

import "context"

// Repository defines the interface for bid persistence.
type Repository interface {
	Create(ctx context.Context, b *Bid) error
	GetByHash(ctx context.Context, hash string) (*Bid, error)
	GetByMsgID(ctx context.Context, msgID string) (*Bid, error)
	// ListByChain returns every step of a chain in creation order.
	ListByChain(ctx context.Context, chainHash string) ([]*Bid, error)
	CountByListing(ctx context.Context, listingHash string) (int, error)
}
