package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p2pmarket/marketd/internal/application/action"
	"github.com/p2pmarket/marketd/internal/domain/apperr"
	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/notification"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// Recorder receives processing metrics.
type Recorder interface {
	MessageProcessed(action protocol.ActionType, status envelope.Status, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) MessageProcessed(protocol.ActionType, envelope.Status, time.Duration) {}

// Dispatcher routes incoming envelopes to their handlers and records the outcome.
type Dispatcher struct {
	store    store.Store
	registry *Registry
	sink     notification.Sink
	recorder Recorder
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates a dispatcher. A nil sink drops notifications.
func New(st store.Store, registry *Registry, sink notification.Sink, recorder Recorder, logger zerolog.Logger) *Dispatcher {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		store:    st,
		registry: registry,
		sink:     sink,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("service", "dispatcher").Logger(),
	}
}

var errAlreadyProcessed = errors.New("already processed")

// Process handles one incoming envelope and returns its new status. The
// envelope is updated in place and persisted. Failures are never retried here.
func (d *Dispatcher) Process(ctx context.Context, env *envelope.Envelope) envelope.Status {
	start := d.now()
	if env.Status == envelope.StatusProcessed {
		return envelope.StatusProcessed
	}
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}
	env.Direction = protocol.DirectionIncoming
	logger := d.logger.With().Str("msgid", env.MsgID).Logger()

	msg, err := protocol.Decode(env.Payload)
	if err != nil {
		return d.fail(ctx, store.ObjectLockKey(env.MsgID), env, apperr.Structural("%v", err), start)
	}
	env.ActionType = msg.Type()
	env.ActionHash = msg.Hash()
	logger = logger.With().Str("action", string(msg.Type())).Logger()

	h, ok := d.registry.Lookup(msg.Type())
	if !ok {
		return d.fail(ctx, store.ObjectLockKey(msg.Hash()), env, apperr.Structural("no handler for %s", msg.Type()), start)
	}
	lockKey := h.LockKey(msg)
	if err := h.ValidateMessage(msg); err != nil {
		return d.fail(ctx, lockKey, env, err, start)
	}

	meta := action.Meta{Direction: protocol.DirectionIncoming, MsgID: env.MsgID, From: env.From, To: env.To}
	var applied *action.Applied
	err = d.store.InTx(ctx, lockKey, func(ctx context.Context, tx store.Repositories) error {
		stored, err := tx.Envelopes().GetByMsgID(ctx, env.MsgID, protocol.DirectionIncoming)
		if err != nil {
			return apperr.Persistence("failed to load envelope", err)
		}
		if stored != nil && stored.Status == envelope.StatusProcessed {
			*env = *stored
			return errAlreadyProcessed
		}
		if err := h.ValidateSequence(ctx, tx, msg, meta); err != nil {
			return err
		}
		if applied, err = h.Apply(ctx, tx, msg, meta); err != nil {
			return err
		}
		now := d.now()
		env.Status = envelope.StatusProcessed
		env.ProcessedAt = &now
		env.LastError = ""
		env.Retryable = false
		return upsert(ctx, tx.Envelopes(), env, stored != nil)
	})
	switch {
	case errors.Is(err, errAlreadyProcessed):
		logger.Debug().Msg("envelope already processed")
		return envelope.StatusProcessed
	case apperr.IsDeferred(err):
		env.Status = envelope.StatusWaiting
		env.LastError = err.Error()
		env.Retryable = true
		d.save(ctx, lockKey, env)
		logger.Debug().Err(err).Msg("message deferred")
		d.recorder.MessageProcessed(env.ActionType, env.Status, d.now().Sub(start))
		return env.Status
	case err != nil:
		return d.fail(ctx, lockKey, env, err, start)
	}

	if post, ok := h.(action.PostApplier); ok && applied.Created {
		if err := post.AfterCommit(ctx, msg, applied); err != nil {
			logger.Warn().Err(err).Msg("post-apply hook failed")
		}
	}
	if n := h.Notify(msg, meta, applied); n != nil && d.sink != nil {
		if err := d.sink.Publish(ctx, n); err != nil {
			logger.Warn().Err(err).Msg("failed to publish notification")
		}
	}
	logger.Info().Str("hash", msg.Hash()).Bool("created", applied.Created).Msg("message processed")
	d.recorder.MessageProcessed(env.ActionType, env.Status, d.now().Sub(start))
	return env.Status
}

// fail marks the envelope PROCESSING_FAILED. Persistence and unclassified
// errors stay eligible for another attempt.
func (d *Dispatcher) fail(ctx context.Context, lockKey string, env *envelope.Envelope, err error, start time.Time) envelope.Status {
	kind := apperr.KindOf(err)
	env.Status = envelope.StatusProcessingFailed
	env.LastError = err.Error()
	env.Retryable = kind == apperr.KindPersistence || kind == ""
	env.Retries++
	d.save(ctx, lockKey, env)
	d.logger.Warn().Err(err).
		Str("msgid", env.MsgID).
		Str("action", string(env.ActionType)).
		Str("kind", string(kind)).
		Bool("retryable", env.Retryable).
		Msg("message processing failed")
	d.recorder.MessageProcessed(env.ActionType, env.Status, d.now().Sub(start))
	return env.Status
}

// save writes a WAITING or FAILED envelope under the message's lock. A copy
// another worker already PROCESSED is kept and loaded into env.
func (d *Dispatcher) save(ctx context.Context, lockKey string, env *envelope.Envelope) {
	err := d.store.InTx(ctx, lockKey, func(ctx context.Context, tx store.Repositories) error {
		stored, err := tx.Envelopes().GetByMsgID(ctx, env.MsgID, protocol.DirectionIncoming)
		if err != nil {
			return err
		}
		if stored != nil && stored.Status == envelope.StatusProcessed {
			*env = *stored
			return nil
		}
		return upsert(ctx, tx.Envelopes(), env, stored != nil)
	})
	if err != nil {
		d.logger.Error().Err(err).Str("msgid", env.MsgID).Msg("failed to save envelope")
	}
}

func upsert(ctx context.Context, repo envelope.Repository, env *envelope.Envelope, exists bool) error {
	if exists {
		return repo.Update(ctx, env)
	}
	return repo.Create(ctx, env)
}
