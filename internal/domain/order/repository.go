package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for order persistence.
type Repository interface {
	Create(ctx context.Context, o *Order, it *Item) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error)
	// GetItemByBidHash locks the item row for the rest of the transaction.
	GetItemByBidHash(ctx context.Context, bidHash string) (*Item, error)
	// UpdateStatus writes the item and order states together.
	UpdateStatus(ctx context.Context, o *Order, it *Item) error
}
