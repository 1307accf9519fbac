package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p2pmarket/marketd/internal/application/action"
	"github.com/p2pmarket/marketd/internal/application/inbox"
	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/domain/notification"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	actions *action.Service
	inbox   *inbox.Processor
	store   store.Store
	hub     notification.Hub
	metrics http.Handler
	token   string
	logger  zerolog.Logger
}

type Deps struct {
	Actions *action.Service
	Inbox   *inbox.Processor
	Store   store.Store
	Hub     notification.Hub
	Metrics http.Handler
	// Token guards the write endpoints when set.
	Token string
}

// NewServer creates the HTTP API server.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	return &Server{
		actions: deps.Actions,
		inbox:   deps.Inbox,
		store:   deps.Store,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		token:   deps.Token,
		logger:  logger.With().Str("service", "http").Logger(),
	}
}

// Router returns the HTTP handler for all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		// Streams outlive the request timeout.
		r.With(s.requireToken).Get("/events", s.events)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(s.requireToken)

			r.Route("/inbox", func(r chi.Router) {
				r.Post("/", s.deliver)
				r.Get("/{msgid}", s.getEnvelope)
			})
			r.Get("/outbox/{msgid}", s.getEnvelope)

			r.Post("/listings", s.addListing)
			r.Post("/listings/{listingHash}/images", s.addImage)
			r.Post("/markets", s.addMarket)
			r.Post("/comments", s.addComment)
			r.Post("/proposals", s.addProposal)
			r.Post("/proposals/{proposalHash}/votes", s.vote)

			r.Route("/bids", func(r chi.Router) {
				r.Post("/", s.bid)
				r.Post("/{bidHash}/{step}", s.step)
			})
		})
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deliver(w http.ResponseWriter, r *http.Request) {
	var in inbox.Incoming
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	env, err := s.inbox.Deliver(r.Context(), in)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, env)
}

func (s *Server) getEnvelope(w http.ResponseWriter, r *http.Request) {
	dir := protocol.DirectionIncoming
	if strings.HasPrefix(r.URL.Path, "/v1/outbox/") {
		dir = protocol.DirectionOutgoing
	}
	env, err := s.store.Envelopes().GetByMsgID(r.Context(), chi.URLParam(r, "msgid"), dir)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	if env == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "message not found")
		return
	}
	respondJSON(w, http.StatusOK, env)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	var types []protocol.ActionType
	for _, t := range splitCSV(r.URL.Query().Get("events")) {
		types = append(types, protocol.ActionType(strings.ToUpper(t)))
	}
	sub := notification.NewSubscriber(clientID, splitCSV(r.URL.Query().Get("addresses")), types)

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	s.hub.Subscribe(sub)
	defer s.hub.Unsubscribe(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case n, open := <-sub.C:
			if !open {
				return
			}
			payload, _ := json.Marshal(n)
			_, _ = w.Write([]byte("event: " + string(n.Event) + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// respondSend writes the outcome of an outgoing action.
func (s *Server) respondSend(w http.ResponseWriter, res *chain.SendResult, err error) {
	if res != nil && res.Error != "" {
		respondJSON(w, http.StatusBadGateway, res)
		return
	}
	if err != nil {
		status, code := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Msg("send failed")
		}
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// errorStatus maps a pipeline error kind to an HTTP status.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperr.ErrStructural):
		return http.StatusBadRequest, "INVALID_MESSAGE"
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, apperr.ErrSequenceRejected), errors.Is(err, apperr.ErrDeferred):
		return http.StatusConflict, "SEQUENCE_REJECTED"
	case errors.Is(err, apperr.ErrBusinessRule):
		return http.StatusUnprocessableEntity, "BUSINESS_RULE"
	case errors.Is(err, apperr.ErrPersistence):
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
	return http.StatusBadGateway, "TRANSPORT_ERROR"
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
