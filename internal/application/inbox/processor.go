package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p2pmarket/marketd/internal/domain/envelope"
	"github.com/p2pmarket/marketd/internal/domain/store"
	"github.com/p2pmarket/marketd/internal/protocol"
)

// Dispatcher processes one stored envelope.
type Dispatcher interface {
	Process(ctx context.Context, env *envelope.Envelope) envelope.Status
}

// Config tunes the inbox loop.
type Config struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	// Retention applies when the sender did not ask for one.
	Retention  time.Duration
	MaxRetries int
}

// Processor stores incoming envelopes and feeds them to the dispatcher.
type Processor struct {
	store      store.Store
	dispatcher Dispatcher
	cfg        Config
	now        func() time.Time
	logger     zerolog.Logger
}

// NewProcessor creates an inbox processor.
func NewProcessor(st store.Store, d Dispatcher, cfg Config, logger zerolog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &Processor{
		store:      st,
		dispatcher: d,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger.With().Str("service", "inbox").Logger(),
	}
}

// Incoming is a message handed over by the transport.
type Incoming struct {
	MsgID         string          `json:"msgid"`
	From          string          `json:"from"`
	To            string          `json:"to"`
	DaysRetention int             `json:"daysRetention,omitempty"`
	Message       json.RawMessage `json:"message"`
}

// Receive stores an incoming message once per msgid and returns the record.
func (p *Processor) Receive(ctx context.Context, in Incoming) (*envelope.Envelope, error) {
	if strings.TrimSpace(in.MsgID) == "" {
		return nil, fmt.Errorf("msgid is required")
	}
	if len(in.Message) == 0 {
		return nil, fmt.Errorf("message is required")
	}
	existing, err := p.store.Envelopes().GetByMsgID(ctx, in.MsgID, protocol.DirectionIncoming)
	if err != nil {
		return nil, fmt.Errorf("failed to load envelope: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := p.now()
	retention := p.cfg.Retention
	if in.DaysRetention > 0 {
		retention = time.Duration(in.DaysRetention) * 24 * time.Hour
	}
	env := &envelope.Envelope{
		ID:         uuid.New(),
		MsgID:      in.MsgID,
		Direction:  protocol.DirectionIncoming,
		Status:     envelope.StatusReceived,
		From:       in.From,
		To:         in.To,
		Payload:    in.Message,
		ReceivedAt: now,
		ExpiresAt:  now.Add(retention),
	}
	if err := p.store.Envelopes().Create(ctx, env); err != nil {
		return nil, fmt.Errorf("failed to store envelope: %w", err)
	}
	p.logger.Debug().Str("msgid", env.MsgID).Str("from", env.From).Msg("message received")
	return env, nil
}

// Deliver receives a message and processes it right away.
func (p *Processor) Deliver(ctx context.Context, in Incoming) (*envelope.Envelope, error) {
	env, err := p.Receive(ctx, in)
	if err != nil {
		return nil, err
	}
	if env.Final() {
		return env, nil
	}
	p.dispatcher.Process(ctx, env)
	return env, nil
}

// ProcessPending runs one batch of due envelopes through the worker pool
// and returns how many reached PROCESSED.
func (p *Processor) ProcessPending(ctx context.Context) (int, error) {
	due, err := p.store.Envelopes().ListProcessable(ctx, p.now(), p.cfg.MaxRetries, p.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list processable envelopes: %w", err)
	}
	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, env := range due {
		g.Go(func() error {
			if p.dispatcher.Process(gctx, env) == envelope.StatusProcessed {
				processed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(processed.Load()), nil
}

// ExpireStale marks envelopes past their retention as expired.
func (p *Processor) ExpireStale(ctx context.Context) (int64, error) {
	n, err := p.store.Envelopes().ExpireStale(ctx, p.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire envelopes: %w", err)
	}
	return n, nil
}

// Run polls until ctx is cancelled. The optional tick runs after every batch.
func (p *Processor) Run(ctx context.Context, tick func(context.Context)) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	p.logger.Info().Int("workers", p.cfg.Workers).Dur("interval", p.cfg.PollInterval).Msg("inbox loop started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("inbox loop stopped")
			return
		case <-ticker.C:
			if n, err := p.ProcessPending(ctx); err != nil {
				p.logger.Error().Err(err).Msg("failed to process pending envelopes")
			} else if n > 0 {
				p.logger.Debug().Int("processed", n).Msg("pending envelopes processed")
			}
			if n, err := p.ExpireStale(ctx); err != nil {
				p.logger.Error().Err(err).Msg("failed to expire envelopes")
			} else if n > 0 {
				p.logger.Info().Int64("expired", n).Msg("envelopes expired")
			}
			if tick != nil {
				tick(ctx)
			}
		}
	}
}
