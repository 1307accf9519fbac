package comment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Comment is a message attached to a listing, market or another comment.
type Comment struct {
	ID         uuid.UUID `json:"id"`
	Hash       string    `json:"hash"`
	Sender     string    `json:"sender"`
	Receiver   string    `json:"receiver"`
	Target     string    `json:"target"`
	ParentHash string    `json:"parentHash,omitempty"`
	Message    string    `json:"message"`
	Type       string    `json:"type"`
	PostedAt   time.Time `json:"postedAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Repository defines the interface for comment persistence.
type Repository interface {
	Create(ctx context.Context, c *Comment) error
	GetByHash(ctx context.Context, hash string) (*Comment, error)
}
