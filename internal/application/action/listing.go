package action

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/listing"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// ListingRequest publishes a listing to a market.
type ListingRequest struct {
	Route
	Listing protocol.ListingPayload
}

type listingHandler struct {
	base
	noHooks[ListingRequest]
}

func (h *listingHandler) Build(_ context.Context, _ store.Repositories, req ListingRequest) (protocol.Action, error) {
	item := req.Listing
	if item.Seller == "" {
		item.Seller = req.From
	}
	if item.Market == "" {
		item.Market = req.To
	}
	return &protocol.ListingAddAction{Item: item}, nil
}

func (h *listingHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, _ Meta) (*Applied, error) {
	a, ok := msg.Action.(*protocol.ListingAddAction)
	if !ok {
		return nil, apperr.Structural("expected %s", protocol.TypeListingAdd)
	}
	existing, err := repos.Listings().GetByHash(ctx, a.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load listing", err)
	}
	if existing != nil {
		return &Applied{ObjectID: existing.ID, ObjectHash: existing.Hash, Target: existing.Market}, nil
	}
	item := &listing.Item{
		ID:          uuid.New(),
		Hash:        a.Hash,
		Seller:      a.Item.Seller,
		Market:      a.Item.Market,
		Title:       a.Item.Title,
		Description: a.Item.Description,
		Price:       a.Item.Price,
		CreatedAt:   h.now(),
	}
	if a.Item.Expires > 0 {
		item.ExpiresAt = time.UnixMilli(a.Item.Expires).UTC()
	}
	if err := repos.Listings().Create(ctx, item); err != nil {
		return nil, apperr.Persistence("failed to create listing", err)
	}
	return &Applied{ObjectID: item.ID, ObjectHash: item.Hash, Target: item.Market, Created: true}, nil
}

// ImageRequest attaches an image to a listing.
type ImageRequest struct {
	Route
	ListingHash string
	Data        string
	Featured    bool
}

type imageHandler struct {
	base
	noHooks[ImageRequest]
}

func (h *imageHandler) Build(ctx context.Context, repos store.Repositories, req ImageRequest) (protocol.Action, error) {
	item, err := repos.Listings().GetByHash(ctx, req.ListingHash)
	if err != nil {
		return nil, apperr.Persistence("failed to load listing", err)
	}
	if item == nil {
		return nil, apperr.NotFound("listing %s", req.ListingHash)
	}
	return &protocol.ListingImageAddAction{Target: item.Hash, Data: req.Data, Featured: req.Featured}, nil
}

func (h *imageHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, _ Meta) (*Applied, error) {
	a, ok := msg.Action.(*protocol.ListingImageAddAction)
	if !ok {
		return nil, apperr.Structural("expected %s", protocol.TypeListingImageAdd)
	}
	existing, err := repos.Listings().GetImageByHash(ctx, a.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load image", err)
	}
	if existing != nil {
		return &Applied{ObjectID: existing.ID, ObjectHash: existing.Hash, Target: existing.ListingHash}, nil
	}
	item, err := repos.Listings().GetByHash(ctx, a.Target)
	if err != nil {
		return nil, apperr.Persistence("failed to load listing", err)
	}
	if item == nil {
		return nil, apperr.NotFound("listing %s", a.Target)
	}
	img := &listing.Image{
		ID:          uuid.New(),
		Hash:        a.Hash,
		ListingHash: item.Hash,
		Data:        a.Data,
		Featured:    a.Featured,
		CreatedAt:   h.now(),
	}
	if err := repos.Listings().CreateImage(ctx, img); err != nil {
		return nil, apperr.Persistence("failed to create image", err)
	}
	return &Applied{ObjectID: img.ID, ObjectHash: img.Hash, Target: img.ListingHash, Created: true}, nil
}
