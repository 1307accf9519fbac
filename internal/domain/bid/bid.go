package bid

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/protocol"
)

// Bid records one step of a negotiation. The first Bid of a chain is the
// MPA_BID itself; every later step points at its predecessor.
type Bid struct {
	ID          uuid.UUID           `json:"id"`
	Type        protocol.ActionType `json:"type"`
	Hash        string              `json:"hash"`
	MsgID       string              `json:"msgid"`
	Direction   protocol.Direction  `json:"direction"`
	Bidder      string              `json:"bidder"`
	ListingHash string              `json:"listingHash"`
	ChainHash   string              `json:"chainHash"`
	ParentHash  string              `json:"parentHash,omitempty"`
	Payload     json.RawMessage     `json:"payload,omitempty"`
	GeneratedAt time.Time           `json:"generatedAt"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// NewRoot creates the initial Bid of a chain.
func NewRoot(hash, msgID, bidder, listingHash string, dir protocol.Direction, payload json.RawMessage, generated time.Time) *Bid {
	return &Bid{
		ID:          uuid.New(),
		Type:        protocol.TypeBid,
		Hash:        hash,
		MsgID:       msgID,
		Direction:   dir,
		Bidder:      bidder,
		ListingHash: listingHash,
		ChainHash:   hash,
		Payload:     payload,
		GeneratedAt: generated,
		CreatedAt:   time.Now().UTC(),
	}
}

// NewStep creates the Bid recording a chain step after parent.
func NewStep(typ protocol.ActionType, hash, msgID string, dir protocol.Direction, parent *Bid, payload json.RawMessage, generated time.Time) *Bid {
	return &Bid{
		ID:          uuid.New(),
		Type:        typ,
		Hash:        hash,
		MsgID:       msgID,
		Direction:   dir,
		Bidder:      parent.Bidder,
		ListingHash: parent.ListingHash,
		ChainHash:   parent.ChainHash,
		ParentHash:  parent.Hash,
		Payload:     payload,
		GeneratedAt: generated,
		CreatedAt:   time.Now().UTC(),
	}
}

// IsRoot reports whether b opened its chain.
func (b *Bid) IsRoot() bool {
	return b.ParentHash == ""
}

// Last returns the most recent step of a chain ordered by creation.
func Last(chain []*Bid) *Bid {
	if len(chain) == 0 {
		return nil
	}
	return chain[len(chain)-1]
}

// FindType returns the first step of the given type.
func FindType(chain []*Bid, typ protocol.ActionType) *Bid {
	for _, b := range chain {
		if b.Type == typ {
			return b
		}
	}
	return nil
}
