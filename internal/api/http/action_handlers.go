package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/p2pmarket/marketd/internal/application/action"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/protocol"
)

type routeRequest struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Paid          bool   `json:"paid"`
	DaysRetention int    `json:"days_retention"`
	Estimate      bool   `json:"estimate"`
}

func (r routeRequest) route() action.Route {
	return action.Route{
		From:          r.From,
		To:            r.To,
		Paid:          r.Paid,
		DaysRetention: r.DaysRetention,
		EstimateFee:   r.Estimate,
	}
}

type listingRequest struct {
	routeRequest
	Market      string `json:"market"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	ExpiresAt   int64  `json:"expires_at"`
}

type imageRequest struct {
	routeRequest
	Data     string `json:"data"`
	Featured bool   `json:"featured"`
}

type marketRequest struct {
	routeRequest
	Name        string `json:"name"`
	Description string `json:"description"`
	MarketType  string `json:"market_type"`
	ReceiveKey  string `json:"receive_key"`
	PublishKey  string `json:"publish_key"`
}

type commentRequest struct {
	routeRequest
	Target      string `json:"target"`
	Parent      string `json:"parent"`
	Message     string `json:"message"`
	CommentType string `json:"comment_type"`
}

type bidRequest struct {
	routeRequest
	ListingHash string                    `json:"listing_hash"`
	Amount      int64                     `json:"amount"`
	Shipping    *protocol.ShippingAddress `json:"shipping"`
}

type proposalRequest struct {
	routeRequest
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Target        string   `json:"target"`
	Options       []string `json:"options"`
	PeriodSeconds int64    `json:"period_seconds"`
}

type voteRequest struct {
	routeRequest
	OptionID int `json:"option_id"`
}

type stepRequest struct {
	routeRequest
	Escrow string `json:"escrow"`
	Memo   string `json:"memo"`
}

func (s *Server) addListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.To == "" {
		req.To = req.Market
	}
	res, err := s.actions.AddListing(r.Context(), action.ListingRequest{
		Route: req.route(),
		Listing: protocol.ListingPayload{
			Market:      req.Market,
			Title:       req.Title,
			Description: req.Description,
			Price:       req.Price,
			Expires:     req.ExpiresAt,
		},
	})
	s.respondSend(w, res, err)
}

func (s *Server) addImage(w http.ResponseWriter, r *http.Request) {
	var req imageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.actions.AddImage(r.Context(), action.ImageRequest{
		Route:       req.route(),
		ListingHash: chi.URLParam(r, "listingHash"),
		Data:        req.Data,
		Featured:    req.Featured,
	})
	s.respondSend(w, res, err)
}

func (s *Server) addMarket(w http.ResponseWriter, r *http.Request) {
	var req marketRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.actions.AddMarket(r.Context(), action.MarketRequest{
		Route:       req.route(),
		Name:        req.Name,
		Description: req.Description,
		MarketType:  req.MarketType,
		ReceiveKey:  req.ReceiveKey,
		PublishKey:  req.PublishKey,
	})
	s.respondSend(w, res, err)
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.actions.AddComment(r.Context(), action.CommentRequest{
		Route:       req.route(),
		Target:      req.Target,
		Parent:      req.Parent,
		Message:     req.Message,
		CommentType: req.CommentType,
	})
	s.respondSend(w, res, err)
}

func (s *Server) bid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if req.ListingHash == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "listing_hash required")
		return
	}
	res, err := s.actions.Bid(r.Context(), action.BidRequest{
		Route:       req.route(),
		ListingHash: req.ListingHash,
		Shipping:    req.Shipping,
		Amount:      req.Amount,
	})
	s.respondSend(w, res, err)
}

func (s *Server) addProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.actions.AddProposal(r.Context(), action.ProposalRequest{
		Route:       req.route(),
		Title:       req.Title,
		Description: req.Description,
		Category:    protocol.ProposalCategory(strings.ToUpper(req.Category)),
		Target:      req.Target,
		Options:     req.Options,
		Period:      time.Duration(req.PeriodSeconds) * time.Second,
	})
	s.respondSend(w, res, err)
}

func (s *Server) vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := s.actions.Vote(r.Context(), action.VoteRequest{
		Route:        req.route(),
		ProposalHash: chi.URLParam(r, "proposalHash"),
		OptionID:     req.OptionID,
	})
	s.respondSend(w, res, err)
}

type stepSender func(context.Context, action.StepRequest) (*chain.SendResult, error)

func (s *Server) stepSenders() map[string]stepSender {
	return map[string]stepSender{
		"accept":   s.actions.Accept,
		"reject":   s.actions.Reject,
		"cancel":   s.actions.Cancel,
		"lock":     s.actions.Lock,
		"complete": s.actions.Complete,
		"release":  s.actions.Release,
		"refund":   s.actions.Refund,
		"ship":     s.actions.Ship,
	}
}

// step dispatches POST /v1/bids/{bidHash}/{step} to the matching chain step.
func (s *Server) step(w http.ResponseWriter, r *http.Request) {
	send, ok := s.stepSenders()[strings.ToLower(chi.URLParam(r, "step"))]
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "unknown step")
		return
	}
	var req stepRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	res, err := send(r.Context(), action.StepRequest{
		Route:   req.route(),
		BidHash: chi.URLParam(r, "bidHash"),
		Escrow:  protocol.EscrowType(strings.ToUpper(req.Escrow)),
		Memo:    req.Memo,
	})
	s.respondSend(w, res, err)
}
