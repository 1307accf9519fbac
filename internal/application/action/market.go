package action

import (
	"context"

	"github.com/google/uuid"

	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/comment"
	"github.com/p2pmarket/marketd/internal/domain/market"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// MarketRequest announces a market.
type MarketRequest struct {
	Route
	Name        string
	Description string
	MarketType  string
	ReceiveKey  string
	PublishKey  string
}

type marketHandler struct {
	base
	noHooks[MarketRequest]
}

func (h *marketHandler) Build(_ context.Context, _ store.Repositories, req MarketRequest) (protocol.Action, error) {
	publish := req.PublishKey
	if publish == "" {
		publish = req.ReceiveKey
	}
	return &protocol.MarketAddAction{
		Name:        req.Name,
		Description: req.Description,
		MarketType:  req.MarketType,
		ReceiveKey:  req.ReceiveKey,
		PublishKey:  publish,
	}, nil
}

func (h *marketHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, _ Meta) (*Applied, error) {
	a, ok := msg.Action.(*protocol.MarketAddAction)
	if !ok {
		return nil, apperr.Structural("expected %s", protocol.TypeMarketAdd)
	}
	existing, err := repos.Markets().GetByHash(ctx, a.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load market", err)
	}
	if existing != nil {
		return &Applied{ObjectID: existing.ID, ObjectHash: existing.Hash}, nil
	}
	m := &market.Market{
		ID:          uuid.New(),
		Hash:        a.Hash,
		Name:        a.Name,
		Description: a.Description,
		Type:        a.MarketType,
		ReceiveKey:  a.ReceiveKey,
		PublishKey:  a.PublishKey,
		CreatedAt:   h.now(),
	}
	if err := repos.Markets().Create(ctx, m); err != nil {
		return nil, apperr.Persistence("failed to create market", err)
	}
	return &Applied{ObjectID: m.ID, ObjectHash: m.Hash, Created: true}, nil
}

// CommentRequest posts a comment.
type CommentRequest struct {
	Route
	Target      string
	Parent      string
	Message     string
	CommentType string
}

type commentHandler struct {
	base
	noHooks[CommentRequest]
}

func (h *commentHandler) Build(ctx context.Context, repos store.Repositories, req CommentRequest) (protocol.Action, error) {
	if req.Parent != "" {
		parent, err := repos.Comments().GetByHash(ctx, req.Parent)
		if err != nil {
			return nil, apperr.Persistence("failed to load comment", err)
		}
		if parent == nil {
			return nil, apperr.NotFound("comment %s", req.Parent)
		}
	}
	return &protocol.CommentAddAction{
		Sender:      req.From,
		Receiver:    req.To,
		Target:      req.Target,
		Parent:      req.Parent,
		Message:     req.Message,
		CommentType: req.CommentType,
	}, nil
}

func (h *commentHandler) Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, _ Meta) (*Applied, error) {
	a, ok := msg.Action.(*protocol.CommentAddAction)
	if !ok {
		return nil, apperr.Structural("expected %s", protocol.TypeCommentAdd)
	}
	existing, err := repos.Comments().GetByHash(ctx, a.Hash)
	if err != nil {
		return nil, apperr.Persistence("failed to load comment", err)
	}
	if existing != nil {
		return &Applied{ObjectID: existing.ID, ObjectHash: existing.Hash, Target: existing.Target}, nil
	}
	c := &comment.Comment{
		ID:         uuid.New(),
		Hash:       a.Hash,
		Sender:     a.Sender,
		Receiver:   a.Receiver,
		Target:     a.Target,
		ParentHash: a.Parent,
		Message:    a.Message,
		Type:       a.CommentType,
		PostedAt:   generatedAt(a),
		CreatedAt:  h.now(),
	}
	if err := repos.Comments().Create(ctx, c); err != nil {
		return nil, apperr.Persistence("failed to create comment", err)
	}
	return &Applied{ObjectID: c.ID, ObjectHash: c.Hash, Target: c.Target, Created: true}, nil
}
