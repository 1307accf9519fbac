package listing

import (
	"time"

	"github.com/google/uuid"
)

// Item is a listing announced on a market.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Hash        string    `json:"hash"`
	Seller      string    `json:"seller"`
	Market      string    `json:"market"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Price       int64     `json:"price"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Removed     bool      `json:"removed"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Expired reports whether the listing is past its expiry at now.
func (i *Item) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Image is a picture attached to a listing.
type Image struct {
	ID          uuid.UUID `json:"id"`
	Hash        string    `json:"hash"`
	ListingHash string    `json:"listingHash"`
	Data        string    `json:"data"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"createdAt"`
}

// References counts local records that keep a listing alive.
type References struct {
	Bids      int `json:"bids"`
	Favorites int `json:"favorites"`
	CartItems int `json:"cartItems"`
}

// Any reports whether at least one reference exists.
func (r References) Any() bool {
	return r.Bids > 0 || r.Favorites > 0 || r.CartItems > 0
}
