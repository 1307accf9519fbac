package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p2pmarket/marketd/internal/application/validation"
	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/chain"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/notification"
	"github.com/p2pmarket/marketd/internal/domain/proposal"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// Meta describes where a message came from or went to.
type Meta struct {
	Direction protocol.Direction
	MsgID     string
	From      string
	To        string
}

// Applied identifies the record an apply produced or found.
type Applied struct {
	ObjectID   uuid.UUID
	ObjectHash string
	Target     string
	// Created is false when the message had already been applied.
	Created bool
}

// Handler is the incoming side of one action type.
type Handler interface {
	Type() protocol.ActionType
	ValidateMessage(msg *protocol.Message) error
	ValidateSequence(ctx context.Context, repos store.Repositories, msg *protocol.Message, meta Meta) error
	// LockKey names the unit of mutual exclusion the message touches.
	LockKey(msg *protocol.Message) string
	Apply(ctx context.Context, repos store.Repositories, msg *protocol.Message, meta Meta) (*Applied, error)
	Notify(msg *protocol.Message, meta Meta, applied *Applied) *notification.Notification
}

// PostApplier runs after the apply transaction committed.
type PostApplier interface {
	AfterCommit(ctx context.Context, msg *protocol.Message, applied *Applied) error
}

// Route addresses an outgoing message.
type Route struct {
	From          string
	To            string
	Paid          bool
	DaysRetention int
	EstimateFee   bool
}

func (r Route) Routing() Route { return r }

// Routed is implemented by every outgoing request through an embedded Route.
type Routed interface {
	Routing() Route
}

// Sender is the outgoing side of one action type.
type Sender[R Routed] interface {
	Handler
	Build(ctx context.Context, repos store.Repositories, req R) (protocol.Action, error)
	BeforeSend(ctx context.Context, repos store.Repositories, req R, msg *protocol.Message) error
	AfterSend(ctx context.Context, req R, msg *protocol.Message, res *chain.SendResult) (*chain.SendResult, error)
}

// Tallier recalculates proposal results.
type Tallier interface {
	RecalculateProposalResult(ctx context.Context, proposalHash string) (*proposal.Result, error)
}

// Recorder receives send metrics.
type Recorder interface {
	MessageSent(action protocol.ActionType, result string)
}

type nopRecorder struct{}

func (nopRecorder) MessageSent(protocol.ActionType, string) {}

// noHooks supplies empty send hooks.
type noHooks[R Routed] struct{}

func (noHooks[R]) BeforeSend(context.Context, store.Repositories, R, *protocol.Message) error {
	return nil
}

func (noHooks[R]) AfterSend(_ context.Context, _ R, _ *protocol.Message, res *chain.SendResult) (*chain.SendResult, error) {
	return res, nil
}

// base carries what every handler shares.
type base struct {
	typ       protocol.ActionType
	validator *validation.Validator
	now       func() time.Time
}

func (b base) Type() protocol.ActionType { return b.typ }

func (b base) ValidateMessage(msg *protocol.Message) error {
	return b.validator.ValidateMessage(msg)
}

func (b base) ValidateSequence(ctx context.Context, repos store.Repositories, msg *protocol.Message, meta Meta) error {
	return b.validator.ValidateSequence(ctx, repos, msg, meta.Direction, meta.From)
}

func (b base) LockKey(msg *protocol.Message) string {
	return store.ObjectLockKey(msg.Hash())
}

// Notify builds the uniform event for incoming messages only.
func (b base) Notify(msg *protocol.Message, meta Meta, applied *Applied) *notification.Notification {
	if meta.Direction != protocol.DirectionIncoming || applied == nil || !applied.Created {
		return nil
	}
	n := notification.New(msg.Type(), applied.ObjectID, applied.ObjectHash, meta.From, meta.To, applied.Target)
	n.MsgID = meta.MsgID
	return n
}

func payloadOf(a protocol.Action) (json.RawMessage, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", a.Header().Type, err)
	}
	return raw, nil
}

func generatedAt(a protocol.Action) time.Time {
	return time.UnixMilli(a.Header().Generated).UTC()
}

// defaultRetentionDays applies to sent messages routed without a retention.
const defaultRetentionDays = 7

// Pipeline runs the shared outgoing flow.
type Pipeline struct {
	store     store.Store
	transport chain.Transport
	recorder  Recorder
	now       func() time.Time
	logger    zerolog.Logger
}

// NewPipeline creates the outgoing pipeline shared by every sender.
func NewPipeline(st store.Store, transport chain.Transport, recorder Recorder, logger zerolog.Logger) *Pipeline {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Pipeline{
		store:     st,
		transport: transport,
		recorder:  recorder,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("service", "pipeline").Logger(),
	}
}

// send builds, sends and locally applies one outgoing message. Any failure
// before the transport call leaves no trace on the network or in storage.
func send[R Routed](ctx context.Context, p *Pipeline, s Sender[R], req R) (*chain.SendResult, error) {
	route := req.Routing()
	typ := s.Type()
	logger := p.logger.With().Str("action", string(typ)).Str("to", route.To).Logger()

	act, err := s.Build(ctx, p.store, req)
	if err != nil {
		logger.Warn().Err(err).Msg("build rejected")
		p.recorder.MessageSent(typ, "rejected")
		return nil, err
	}
	hdr := act.Header()
	hdr.Type = typ
	if hdr.Generated == 0 {
		hdr.Generated = p.now().UnixMilli()
	}
	if err := protocol.Seal(act); err != nil {
		return nil, apperr.Structural("%v", err)
	}
	msg := protocol.NewMessage(act)

	if err := s.ValidateMessage(msg); err != nil {
		p.recorder.MessageSent(typ, "rejected")
		return nil, err
	}
	meta := Meta{Direction: protocol.DirectionOutgoing, From: route.From, To: route.To}
	if err := s.ValidateSequence(ctx, p.store, msg, meta); err != nil {
		p.recorder.MessageSent(typ, "rejected")
		return nil, err
	}

	params := chain.SendParams{
		From:          route.From,
		To:            route.To,
		Paid:          route.Paid,
		DaysRetention: route.DaysRetention,
		EstimateFee:   route.EstimateFee,
	}
	if route.EstimateFee {
		res, err := p.transport.Send(ctx, msg, params)
		if err != nil {
			return nil, fmt.Errorf("failed to estimate %s fee: %w", typ, err)
		}
		p.recorder.MessageSent(typ, "estimated")
		return res, nil
	}

	if err := s.BeforeSend(ctx, p.store, req, msg); err != nil {
		p.recorder.MessageSent(typ, "failed")
		return nil, fmt.Errorf("failed to prepare %s: %w", typ, err)
	}
	res, err := p.transport.Send(ctx, msg, params)
	if err != nil {
		p.recorder.MessageSent(typ, "failed")
		return nil, fmt.Errorf("failed to send %s: %w", typ, err)
	}
	if res.Error != "" {
		p.recorder.MessageSent(typ, "failed")
		return res, fmt.Errorf("failed to send %s: %s", typ, res.Error)
	}
	if res, err = s.AfterSend(ctx, req, msg, res); err != nil {
		return res, err
	}

	meta.MsgID = res.MsgID
	var applied *Applied
	err = p.store.InTx(ctx, s.LockKey(msg), func(ctx context.Context, tx store.Repositories) error {
		if err := s.ValidateSequence(ctx, tx, msg, meta); err != nil {
			return err
		}
		var err error
		if applied, err = s.Apply(ctx, tx, msg, meta); err != nil {
			return err
		}
		env, err := p.outgoingEnvelope(msg, meta, route)
		if err != nil {
			return err
		}
		return tx.Envelopes().Create(ctx, env)
	})
	if err != nil {
		logger.Error().Err(err).Str("msgid", res.MsgID).Msg("message sent but local apply failed")
		p.recorder.MessageSent(typ, "apply_failed")
		return res, apperr.Persistence("failed to apply sent message", err)
	}
	if post, ok := s.(PostApplier); ok && applied.Created {
		if err := post.AfterCommit(ctx, msg, applied); err != nil {
			logger.Warn().Err(err).Msg("post-apply hook failed")
		}
	}

	logger.Info().Str("msgid", res.MsgID).Str("hash", msg.Hash()).Msg("message sent")
	p.recorder.MessageSent(typ, "sent")
	return res, nil
}

// outgoingEnvelope records a sent message. It expires with the retention the
// message was sent with.
func (p *Pipeline) outgoingEnvelope(msg *protocol.Message, meta Meta, route Route) (*envelope.Envelope, error) {
	now := p.now()
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Type(), err)
	}
	days := route.DaysRetention
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &envelope.Envelope{
		ID:          uuid.New(),
		MsgID:       meta.MsgID,
		Direction:   protocol.DirectionOutgoing,
		Status:      envelope.StatusSent,
		ActionType:  msg.Type(),
		ActionHash:  msg.Hash(),
		From:        meta.From,
		To:          meta.To,
		Payload:     raw,
		ReceivedAt:  now,
		ProcessedAt: &now,
		ExpiresAt:   now.AddDate(0, 0, days),
	}, nil
}
