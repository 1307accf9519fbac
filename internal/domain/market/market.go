package market

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Market is a marketplace a node can publish listings to.
type Market struct {
	ID          uuid.UUID `json:"id"`
	Hash        string    `json:"hash"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	ReceiveKey  string    `json:"receiveKey"`
	PublishKey  string    `json:"publishKey"`
	Removed     bool      `json:"removed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Repository defines the interface for market persistence.
type Repository interface {
	Create(ctx context.Context, m *Market) error
	GetByHash(ctx context.Context, hash string) (*Market, error)
	MarkRemoved(ctx context.Context, hash string) error
}
