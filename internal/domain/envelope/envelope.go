package envelope

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/protocol"
)

// Status is the delivery state of a message record.
type Status string

const (
	StatusReceived         Status = "RECEIVED"
	StatusWaiting          Status = "WAITING"
	StatusProcessed        Status = "PROCESSED"
	StatusProcessingFailed Status = "PROCESSING_FAILED"
	StatusSent             Status = "SENT"
	StatusExpired          Status = "EXPIRED"
)

// Envelope is the stored record of one transport message.
type Envelope struct {
	ID          uuid.UUID           `json:"id"`
	MsgID       string              `json:"msgid"`
	Direction   protocol.Direction  `json:"direction"`
	Status      Status              `json:"status"`
	ActionType  protocol.ActionType `json:"actionType,omitempty"`
	ActionHash  string              `json:"actionHash,omitempty"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Payload     json.RawMessage     `json:"payload"`
	Retries     int                 `json:"retries"`
	Retryable   bool                `json:"retryable"`
	LastError   string              `json:"lastError,omitempty"`
	ReceivedAt  time.Time           `json:"receivedAt"`
	ProcessedAt *time.Time          `json:"processedAt,omitempty"`
	ExpiresAt   time.Time           `json:"expiresAt"`
}

// Final reports whether no further processing will happen.
func (e *Envelope) Final() bool {
	switch e.Status {
	case StatusProcessed, StatusSent, StatusExpired:
		return true
	}
	return false
}

// Repository defines the interface for envelope persistence.
type Repository interface {
	Create(ctx context.Context, e *Envelope) error
	GetByMsgID(ctx context.Context, msgID string, dir protocol.Direction) (*Envelope, error)
	Update(ctx context.Context, e *Envelope) error
	// ListProcessable returns incoming envelopes due for (re)processing.
	ListProcessable(ctx context.Context, now time.Time, maxRetries, limit int) ([]*Envelope, error)
	// ExpireStale marks unfinished envelopes past their expiry.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}
